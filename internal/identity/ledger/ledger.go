// Package ledger tracks which provider event deliveries have been fully
// applied. The marker is the sole defense against duplicate delivery; markers
// expire after the retention window, after which a re-delivered event is
// re-applied harmlessly because the upsert is idempotent on content.
package ledger

import "context"

// Ledger is the processed-event marker store. Implementations must be safe
// for concurrent use across request handlers.
type Ledger interface {
	// Seen reports whether the event id has a live marker.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Mark records the event id as fully applied. Called only after the
	// corresponding write has committed.
	Mark(ctx context.Context, eventID string) error
}
