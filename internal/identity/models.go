package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is the internal record for one external identity. ExternalID is the
// provider's stable subject identifier and the correlation key for every
// operation; ID is ours, generated once and never reused.
type User struct {
	ID          uuid.UUID
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// DeletedAt is the soft-delete marker. A later create/update event clears
	// it (resurrection): provider event order is not guaranteed and "the user
	// exists with attributes" outweighs an earlier delete.
	DeletedAt *time.Time
}

// Active reports whether the record is not soft-deleted.
func (u User) Active() bool { return u.DeletedAt == nil }

// UpsertUser is the write shape for the conditional upsert. ID is only used
// when the upsert creates the record; on conflict the existing id is kept.
type UpsertUser struct {
	ID          uuid.UUID
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   *string
	Now         time.Time
}

// RoleBanned is the membership role sentinel marking a subject banned from a
// resource. Any other role (or no membership at all) passes the scope check.
const RoleBanned = "banned"

// Membership links a user to a resource with a role. This subsystem only
// reads memberships; they are written elsewhere.
type Membership struct {
	UserID     uuid.UUID
	ResourceID string
	Role       string
}
