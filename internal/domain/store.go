package domain

import (
	"context"
	"time"
)

// ConversationRecord is one persisted turn: the user's effective input and
// the generated response. Records are append-only and time-ordered.
type ConversationRecord struct {
	UserID         string
	Query          string
	Response       string
	AttachmentRefs []string
	Model          string
	CreatedAt      time.Time
}

// HistoryStore persists conversation turns and the per-user model preference.
type HistoryStore interface {
	Append(ctx context.Context, rec ConversationRecord) error
	Clear(ctx context.Context, userID string) error
	// GetHistory returns all records for the user, oldest first.
	GetHistory(ctx context.Context, userID string) ([]ConversationRecord, error)
	// CurrentModel returns the user's model preference, or the baseline
	// model when the user has none recorded.
	CurrentModel(ctx context.Context, userID string) (string, error)
	SetModel(ctx context.Context, userID, model string) error
	Close() error
}

// AttachmentStore resolves opaque attachment references to bytes.
type AttachmentStore interface {
	// Save persists data under ref and returns the canonical reference
	// later Load calls must use.
	Save(ref string, data []byte) (string, error)
	Load(ref string) ([]byte, error)
	ClearAll() error
}
