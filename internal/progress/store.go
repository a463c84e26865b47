package progress

import "context"

// Store is the ephemeral snapshot cache. Implementations must treat entries
// as disposable: a miss is not an error and callers rebuild from the durable
// store.
type Store interface {
	Get(ctx context.Context, executionID string) (Snapshot, bool, error)
	Set(ctx context.Context, snapshot Snapshot) error
	Delete(ctx context.Context, executionID string) error
}
