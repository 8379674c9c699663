// Package callctx stores the accumulated key-value context for live phone
// calls, so identifiers established in earlier turns (customer id, delivery
// id) do not have to be asked for again.
package callctx

import "context"

// Store is the call-scoped context store. Implementations must be safe for
// concurrent use and must apply Merge atomically per key set: a concurrent
// reader sees either none or all of one merge, never a partial write.
//
// Store failures never abort a call; callers are expected to degrade to
// "no context available" on error.
type Store interface {
	// Get returns the value for one key of a call session. The second
	// return is false when the session or key is unknown.
	Get(ctx context.Context, callID, key string) (any, bool, error)

	// GetAll returns a copy of the session's attributes. An unknown call
	// yields an empty map, not an error.
	GetAll(ctx context.Context, callID string) (map[string]any, error)

	// Merge unions attrs into the session, creating it when absent, and
	// refreshes the session's idle clock. Later writes win per key.
	Merge(ctx context.Context, callID string, attrs map[string]any) error

	// End deletes the session immediately.
	End(ctx context.Context, callID string) error

	// Close releases store resources and stops the background reaper.
	Close() error
}
