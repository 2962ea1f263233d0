// Package uid issues identifiers: snowflake numbers for rows and UUIDs for
// correlation and token ids.
package uid

import "github.com/google/uuid"

// NumberID generates sortable numeric identifiers for persisted rows.
type NumberID interface {
	Generate() int64
}

// StringID generates string identifiers (correlation ids, token ids).
type StringID interface {
	Generate() string
}

// UUID issues version 7 UUIDs so correlation ids sort by creation time.
type UUID struct{}

func NewUUID() UUID { return UUID{} }

// Generate falls back to a random v4 when the v7 clock read fails.
func (UUID) Generate() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
