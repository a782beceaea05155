//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idsync/internal/identity"
	"idsync/pkg/platform/sentinel"
	"idsync/pkg/testutil/containers"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           UUID PRIMARY KEY,
	external_id  TEXT NOT NULL UNIQUE,
	email        TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	deleted_at   TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS memberships (
	user_id     UUID NOT NULL REFERENCES users (id),
	resource_id TEXT NOT NULL,
	role        TEXT NOT NULL,
	PRIMARY KEY (user_id, resource_id)
);`

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	pg.Exec(t, schema)
	store := New(pg.DB)
	ctx := context.Background()

	reset := func(t *testing.T) {
		t.Helper()
		pg.Exec(t, `TRUNCATE memberships, users`)
	}

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("upsert creates then overwrites", func(t *testing.T) {
		reset(t)
		created, resurrected, err := store.Upsert(ctx, identity.UpsertUser{
			ID: uuid.New(), ExternalID: "u1", Email: "a@x.com", DisplayName: "Ada", Now: now,
		})
		require.NoError(t, err)
		assert.Equal(t, "u1", created.ExternalID)
		assert.Nil(t, created.DeletedAt)
		assert.False(t, resurrected)

		avatar := "https://cdn.example/a.png"
		updated, resurrected, err := store.Upsert(ctx, identity.UpsertUser{
			ID: uuid.New(), ExternalID: "u1", Email: "b@x.com", DisplayName: "Ada L.", AvatarURL: &avatar, Now: now.Add(time.Minute),
		})
		require.NoError(t, err)
		assert.False(t, resurrected, "overwriting an active record is not a resurrection")
		assert.Equal(t, created.ID, updated.ID, "conflicting upsert keeps the original internal id")
		assert.Equal(t, "b@x.com", updated.Email)
		require.NotNil(t, updated.AvatarURL)
		assert.Equal(t, avatar, *updated.AvatarURL)
		assert.Equal(t, created.CreatedAt, updated.CreatedAt)
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	})

	t.Run("upsert clears deleted_at", func(t *testing.T) {
		reset(t)
		created, _, err := store.Upsert(ctx, identity.UpsertUser{
			ID: uuid.New(), ExternalID: "u1", Email: "a@x.com", Now: now,
		})
		require.NoError(t, err)

		matched, err := store.SoftDelete(ctx, "u1", now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, matched)

		revived, resurrected, err := store.Upsert(ctx, identity.UpsertUser{
			ID: uuid.New(), ExternalID: "u1", Email: "a@x.com", Now: now.Add(2 * time.Minute),
		})
		require.NoError(t, err)
		assert.True(t, resurrected)
		assert.Equal(t, created.ID, revived.ID)
		assert.Nil(t, revived.DeletedAt)
	})

	t.Run("soft delete of absent record reports no match", func(t *testing.T) {
		reset(t)
		matched, err := store.SoftDelete(ctx, "ghost", now)
		require.NoError(t, err)
		assert.False(t, matched)
	})

	t.Run("find by external id", func(t *testing.T) {
		reset(t)
		_, err := store.FindByExternalID(ctx, "u1")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		_, _, err = store.Upsert(ctx, identity.UpsertUser{
			ID: uuid.New(), ExternalID: "u1", Email: "a@x.com", Now: now,
		})
		require.NoError(t, err)

		found, err := store.FindByExternalID(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", found.Email)
	})

	t.Run("find role", func(t *testing.T) {
		reset(t)
		user, _, err := store.Upsert(ctx, identity.UpsertUser{
			ID: uuid.New(), ExternalID: "u1", Email: "a@x.com", Now: now,
		})
		require.NoError(t, err)

		_, err = store.FindRole(ctx, user.ID, "p1")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		pg.Exec(t, `INSERT INTO memberships (user_id, resource_id, role) VALUES ('`+user.ID.String()+`', 'p1', 'banned')`)

		role, err := store.FindRole(ctx, user.ID, "p1")
		require.NoError(t, err)
		assert.Equal(t, identity.RoleBanned, role)
	})
}
