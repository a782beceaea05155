package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"idsync/internal/identity"
	"idsync/pkg/platform/sentinel"
)

// Store persists identity records and memberships in PostgreSQL.
// This store is pure I/O; idempotency and resurrection rules live in the
// reconciler. Atomicity comes from single-statement ON CONFLICT upserts: the
// database serializes concurrent writers to the same external id, so no
// advisory locks are taken.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed identity store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Upsert(ctx context.Context, in identity.UpsertUser) (identity.User, bool, error) {
	// The prior CTE reads the pre-statement snapshot, so it sees deleted_at as
	// it was before this upsert cleared it.
	query := `
		WITH prior AS (
			SELECT deleted_at FROM users WHERE external_id = $2
		)
		INSERT INTO users (id, external_id, email, display_name, avatar_url, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, NULL)
		ON CONFLICT (external_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
		RETURNING id, external_id, email, display_name, avatar_url, created_at, updated_at, deleted_at,
			COALESCE((SELECT prior.deleted_at IS NOT NULL FROM prior), FALSE)
	`
	var (
		user        identity.User
		avatarURL   sql.NullString
		deletedAt   sql.NullTime
		resurrected bool
	)
	err := s.db.QueryRowContext(ctx, query,
		in.ID, in.ExternalID, in.Email, in.DisplayName, in.AvatarURL, in.Now).
		Scan(&user.ID, &user.ExternalID, &user.Email, &user.DisplayName,
			&avatarURL, &user.CreatedAt, &user.UpdatedAt, &deletedAt, &resurrected)
	if err != nil {
		return identity.User{}, false, fmt.Errorf("upsert user: %w", err)
	}
	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		user.DeletedAt = &t
	}
	return user, resurrected, nil
}

func (s *Store) SoftDelete(ctx context.Context, externalID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = $2, updated_at = $2 WHERE external_id = $1`,
		externalID, at)
	if err != nil {
		return false, fmt.Errorf("soft delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Store) FindByExternalID(ctx context.Context, externalID string) (identity.User, error) {
	query := `
		SELECT id, external_id, email, display_name, avatar_url, created_at, updated_at, deleted_at
		FROM users
		WHERE external_id = $1
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.User{}, sentinel.ErrNotFound
		}
		return identity.User{}, fmt.Errorf("find user by external id: %w", err)
	}
	return user, nil
}

func (s *Store) FindRole(ctx context.Context, userID uuid.UUID, resourceID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM memberships WHERE user_id = $1 AND resource_id = $2`,
		userID, resourceID).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("find membership role: %w", err)
	}
	return role, nil
}

func scanUser(row *sql.Row) (identity.User, error) {
	var (
		user      identity.User
		avatarURL sql.NullString
		deletedAt sql.NullTime
	)
	err := row.Scan(&user.ID, &user.ExternalID, &user.Email, &user.DisplayName,
		&avatarURL, &user.CreatedAt, &user.UpdatedAt, &deletedAt)
	if err != nil {
		return identity.User{}, err
	}
	if avatarURL.Valid {
		user.AvatarURL = &avatarURL.String
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		user.DeletedAt = &t
	}
	return user, nil
}
