package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stores are interface-driven to keep the domain logic testable and to allow
// swapping in-memory and Postgres persistence without rewiring business code.
// Implementations are pure I/O; idempotency and event-ordering rules live in
// the service.

// UserStore persists identity records keyed by external id.
type UserStore interface {
	// Upsert atomically creates or overwrites the record for in.ExternalID.
	// On conflict it overwrites email, display name and avatar, bumps
	// updated_at, and unconditionally clears deleted_at. resurrected reports
	// whether that clear flipped a soft-deleted record back to active. The
	// store serializes concurrent writers to the same key; callers get
	// last-write-wins.
	Upsert(ctx context.Context, in UpsertUser) (user User, resurrected bool, err error)

	// SoftDelete sets deleted_at on the matching record. matched is false when
	// no record exists for externalID, which callers treat as success.
	SoftDelete(ctx context.Context, externalID string, at time.Time) (matched bool, err error)

	// FindByExternalID returns sentinel.ErrNotFound (possibly wrapped) when no
	// record exists.
	FindByExternalID(ctx context.Context, externalID string) (User, error)
}

// MembershipStore reads scoped memberships for the validation path.
type MembershipStore interface {
	// FindRole returns the user's role for a resource, or sentinel.ErrNotFound
	// when no membership exists.
	FindRole(ctx context.Context, userID uuid.UUID, resourceID string) (string, error)
}
