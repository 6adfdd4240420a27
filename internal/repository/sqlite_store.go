package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// sqlite driver
	_ "modernc.org/sqlite"

	"content-transformer/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transformations (
	user_id         TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	request_id      TEXT NOT NULL,
	model_id        TEXT NOT NULL,
	prompt          TEXT NOT NULL,
	response        TEXT NOT NULL,
	latency_ms      INTEGER NOT NULL,
	status          TEXT NOT NULL,
	mode            TEXT NOT NULL DEFAULT '',
	target_language TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, created_at)
)`

// SQLiteStore keeps transformation history in a local SQLite file. It backs
// the development server where no DynamoDB table is available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("repository: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: connect sqlite: %w", err)
	}
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("repository: init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// PutRecord inserts rec, replacing any row with the same key.
func (s *SQLiteStore) PutRecord(ctx context.Context, rec domain.TransformationRecord) error {
	if rec.Owner == "" || rec.CreatedAt == "" {
		return errors.New("repository: PutRecord: owner and createdAt are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transformations
			(user_id, created_at, request_id, model_id, prompt, response, latency_ms, status, mode, target_language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Owner, rec.CreatedAt, rec.RequestID, rec.ModelID, rec.Prompt, rec.Response,
		rec.LatencyMs, rec.Status, rec.Mode, rec.TargetLanguage,
	)
	if err != nil {
		return fmt.Errorf("repository: PutRecord: %w", err)
	}
	return nil
}

// QueryByOwner returns the owner's rows newest first, honoring the same cursor
// format as the DynamoDB client.
func (s *SQLiteStore) QueryByOwner(ctx context.Context, owner string, page domain.PageRequest) (domain.HistoryPage, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.HistoryPage{}, errors.New("repository: QueryByOwner: owner is required")
	}

	query := `SELECT user_id, created_at, request_id, model_id, prompt, response, latency_ms, status, mode, target_language
		FROM transformations WHERE user_id = ?`
	args := []any{owner}
	if page.Cursor != "" {
		createdAt, err := decodeCursor(page.Cursor)
		if err != nil {
			return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner: %w", err)
		}
		query += " AND created_at < ?"
		args = append(args, createdAt)
	}
	query += " ORDER BY created_at DESC"
	if page.Limit > 0 {
		// One extra row tells whether another page exists.
		query += " LIMIT ?"
		args = append(args, page.Limit+1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]domain.TransformationRecord, 0)
	for rows.Next() {
		var rec domain.TransformationRecord
		if err := rows.Scan(&rec.Owner, &rec.CreatedAt, &rec.RequestID, &rec.ModelID, &rec.Prompt,
			&rec.Response, &rec.LatencyMs, &rec.Status, &rec.Mode, &rec.TargetLanguage); err != nil {
			return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.HistoryPage{}, fmt.Errorf("repository: QueryByOwner rows: %w", err)
	}

	out := domain.HistoryPage{Records: records}
	if page.Limit > 0 && len(records) > page.Limit {
		out.Records = records[:page.Limit]
		out.NextCursor = encodeCursor(out.Records[page.Limit-1].CreatedAt)
	}
	return out, nil
}
