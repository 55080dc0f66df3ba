package reservation

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopcore/stockhold/internal/domain/stock"
)

// LateCommitPolicy decides what Commit does once a hold's TTL has elapsed.
type LateCommitPolicy string

const (
	// LateCommitRevalidate accepts the commit as a late confirmation. A hold
	// the sweeper already returned to stock is re-checked against current
	// availability and fails with InsufficientStock if it no longer fits.
	LateCommitRevalidate LateCommitPolicy = "revalidate"

	// LateCommitReject refuses any commit past expires_at with Expired.
	LateCommitReject LateCommitPolicy = "reject"
)

// ParseLateCommitPolicy parses a policy name; empty means revalidate.
func ParseLateCommitPolicy(s string) (LateCommitPolicy, error) {
	switch p := LateCommitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return LateCommitRevalidate, nil
	case LateCommitRevalidate, LateCommitReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown late commit policy %q", s)
	}
}

const (
	DefaultTTL       = 15 * time.Minute
	DefaultLockWait  = 2 * time.Second
	DefaultBatchSize = 100
)

// Config tunes the reservation manager
type Config struct {
	TTL        time.Duration
	LockWait   time.Duration
	LateCommit LateCommitPolicy
}

// DefaultConfig returns a 15 minute TTL, 2 second lock wait and the revalidate policy.
func DefaultConfig() Config {
	return Config{
		TTL:        DefaultTTL,
		LockWait:   DefaultLockWait,
		LateCommit: LateCommitRevalidate,
	}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.LockWait <= 0 {
		c.LockWait = DefaultLockWait
	}
	if c.LateCommit == "" {
		c.LateCommit = LateCommitRevalidate
	}
	return c
}

// lockKey names the per-SKU lock shared by every ledger mutation
func lockKey(sku stock.SKU) string {
	return "stock:" + sku.String()
}
