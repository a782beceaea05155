package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"idsync/internal/identity"
	"idsync/pkg/platform/sentinel"
)

// Store is an in-memory UserStore and MembershipStore for unit tests and
// local development. A single mutex stands in for the row-level atomicity the
// Postgres store gets from ON CONFLICT.
type Store struct {
	mu          sync.RWMutex
	users       map[string]identity.User // keyed by external id
	memberships map[membershipKey]string // role by (user id, resource id)
}

type membershipKey struct {
	userID     uuid.UUID
	resourceID string
}

func New() *Store {
	return &Store{
		users:       make(map[string]identity.User),
		memberships: make(map[membershipKey]string),
	}
}

func (s *Store) Upsert(_ context.Context, in identity.UpsertUser) (identity.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[in.ExternalID]
	if !ok {
		user := identity.User{
			ID:          in.ID,
			ExternalID:  in.ExternalID,
			Email:       in.Email,
			DisplayName: in.DisplayName,
			AvatarURL:   in.AvatarURL,
			CreatedAt:   in.Now,
			UpdatedAt:   in.Now,
		}
		s.users[in.ExternalID] = user
		return user, false, nil
	}

	resurrected := existing.DeletedAt != nil
	existing.Email = in.Email
	existing.DisplayName = in.DisplayName
	existing.AvatarURL = in.AvatarURL
	existing.UpdatedAt = in.Now
	existing.DeletedAt = nil
	s.users[in.ExternalID] = existing
	return existing, resurrected, nil
}

func (s *Store) SoftDelete(_ context.Context, externalID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[externalID]
	if !ok {
		return false, nil
	}
	user.DeletedAt = &at
	user.UpdatedAt = at
	s.users[externalID] = user
	return true, nil
}

func (s *Store) FindByExternalID(_ context.Context, externalID string) (identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[externalID]
	if !ok {
		return identity.User{}, sentinel.ErrNotFound
	}
	return user, nil
}

func (s *Store) FindRole(_ context.Context, userID uuid.UUID, resourceID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.memberships[membershipKey{userID: userID, resourceID: resourceID}]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return role, nil
}

// AddMembership seeds a membership. Test helper; memberships are written by
// another system in production.
func (s *Store) AddMembership(m identity.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey{userID: m.UserID, resourceID: m.ResourceID}] = m.Role
}
