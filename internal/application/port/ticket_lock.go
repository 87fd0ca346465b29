package port

import (
	"context"
	"time"
)

// TicketLock serializes duplicate-check-then-create for one ticket title across replicas.
type TicketLock interface {
	// TryLock returns a token and true when the lock was taken.
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// Unlock releases the lock if it is still held with token.
	Unlock(ctx context.Context, key, token string) error
}
