package outbox

import (
	"context"
	"time"
)

// Store is a durable queue of payloads awaiting delivery.
type Store interface {
	// Enqueue persists payload and returns its record id.
	Enqueue(ctx context.Context, payload []byte, createdAt time.Time) (string, error)
	// Pending returns up to limit records, oldest first.
	Pending(ctx context.Context, limit int) ([]Record, error)
	// Ack removes delivered or abandoned records.
	Ack(ctx context.Context, ids ...string) error
	// MarkAttempt counts a failed delivery attempt.
	MarkAttempt(ctx context.Context, id string) error
	// Prune drops records created before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

type Record struct {
	ID        string
	CreatedAt time.Time
	Payload   []byte
	Attempts  int
}
