package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed message keys so redelivered
// events and retried commands run at most once per TTL.
type IdempotencyStore interface {
	// MarkProcessed atomically records the key.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether the key has already been recorded
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Forget removes the key so a failed message can be processed again
	Forget(ctx context.Context, key string) error

	// Close releases resources held by the store
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a processed key is remembered. Default: 24 hours
	TTL time.Duration

	// Enabled turns the check on or off. Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
