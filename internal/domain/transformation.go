package domain

import (
	"errors"
	"time"
)

// StatusSuccess is the only status ever written; failed invocations leave no record.
const StatusSuccess = "SUCCESS"

// CreatedAtLayout is the fixed-width UTC layout of TransformationRecord.CreatedAt.
// Fixed width keeps lexical and chronological order identical for the sort key.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z"

// TransformationRecord is the persisted, write-once result of one successful
// transform request.
type TransformationRecord struct {
	Owner          string
	CreatedAt      string
	RequestID      string
	ModelID        string
	Prompt         string
	Response       string
	LatencyMs      int64
	Status         string
	Mode           string
	TargetLanguage string
	TTL            int64
}

// FormatCreatedAt renders t in CreatedAtLayout.
func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}

// ErrInvalidCursor is returned by history stores for a cursor they did not issue.
var ErrInvalidCursor = errors.New("invalid history cursor")

// PageRequest bounds a history query. A zero Limit means the whole history.
type PageRequest struct {
	Limit  int
	Cursor string
}

// HistoryPage is one newest-first slice of an owner's history.
type HistoryPage struct {
	Records    []TransformationRecord
	NextCursor string
}
