package reservation

import (
	"context"
	"time"
)

// SKULocker serializes ledger mutations for one key across callers.
// Distinct keys never contend.
type SKULocker interface {
	// Acquire waits at most wait for key. On success the returned function
	// releases the lock and must be called exactly once.
	Acquire(ctx context.Context, key string, wait time.Duration) (func(), error)
}
