// Package cache stores computed validation results for a short, fixed
// lifetime. A hit is served verbatim with no re-verification; a ban applied
// after the write stays invisible until the entry expires. That staleness
// window is the accepted trade-off and is bounded by the TTL.
package cache

import (
	"context"

	"idsync/internal/session"
)

// ResultCache is keyed by credential fingerprint, never by the raw credential.
type ResultCache interface {
	// Get returns sentinel.ErrNotFound (possibly wrapped) on a miss.
	Get(ctx context.Context, fingerprint string) (session.Result, error)

	// Set stores the result under the fingerprint with the cache's fixed TTL.
	Set(ctx context.Context, fingerprint string, result session.Result) error
}
