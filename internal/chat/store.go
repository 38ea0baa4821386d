//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_message_store.go -package=mocks
package chat

import "context"

// DefaultHistoryLimit caps public history queries.
const DefaultHistoryLimit = 100

// MessageStore is the durable message history. Save is called before any
// live delivery of the same message.
type MessageStore interface {
	// Save persists ev, assigning an ID when ev.ID is zero.
	Save(ctx context.Context, ev MessageEvent) error
	// QueryPublic returns up to limit of the most recent chat messages,
	// oldest first.
	QueryPublic(ctx context.Context, limit int) ([]MessageEvent, error)
	// QueryDirect returns the direct messages exchanged between a and b in
	// either direction, oldest first. Names match trimmed and
	// case-insensitively.
	QueryDirect(ctx context.Context, a, b string) ([]MessageEvent, error)
}
