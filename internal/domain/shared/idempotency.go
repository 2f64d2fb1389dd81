package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys that have already been handled. The RPC
// dispatcher marks request ids in it and the event forwarder marks event ids.
type IdempotencyStore interface {
	// MarkProcessed reports true when key was not yet marked. The mark and
	// the check are one atomic step.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	// Release drops the mark on key so a retry is handled again. It is used
	// when the work guarded by the mark failed.
	Release(ctx context.Context, key string) error
	Close() error
}
