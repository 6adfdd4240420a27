package repository

import (
	"encoding/base64"
	"fmt"
	"time"

	"content-transformer/internal/domain"
)

// A cursor carries only the sort key of the last returned item. The partition
// key always comes from the caller's identity.
func encodeCursor(createdAt string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt))
}

func decodeCursor(cursor string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("decode cursor: %w", domain.ErrInvalidCursor)
	}
	createdAt := string(raw)
	if _, err := time.Parse(domain.CreatedAtLayout, createdAt); err != nil {
		return "", fmt.Errorf("decode cursor: %w", domain.ErrInvalidCursor)
	}
	return createdAt, nil
}
