package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idsync/internal/audit"
	"idsync/internal/identity"
	"idsync/internal/identity/ledger"
	"idsync/internal/identity/store/memory"
	dErrors "idsync/pkg/domain-errors"
	"idsync/pkg/platform/sentinel"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *ledger.MemoryLedger, *audit.Recorder) {
	t.Helper()
	store := memory.New()
	eventLedger := ledger.NewMemory(24 * time.Hour)
	recorder := audit.NewRecorder()
	svc, err := New(store, eventLedger, WithAuditPublisher(recorder))
	require.NoError(t, err)
	return svc, store, eventLedger, recorder
}

func TestSyncUser_Validation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	t.Run("missing external id", func(t *testing.T) {
		err := svc.SyncUser(ctx, SyncInput{Email: "a@x.com"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("missing email", func(t *testing.T) {
		err := svc.SyncUser(ctx, SyncInput{ExternalID: "u1"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// Scenario A: applying the same event twice produces one record, one marker,
// and the second call is a no-op.
func TestSyncUser_DuplicateDeliveryIsNoop(t *testing.T) {
	svc, store, eventLedger, recorder := newTestService(t)
	ctx := context.Background()

	in := SyncInput{ExternalID: "u1", Email: "a@x.com", DisplayName: "Alice", EventID: "ev1"}
	require.NoError(t, svc.SyncUser(ctx, in))

	first, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.SyncUser(ctx, in))

	second, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, second, "duplicate delivery must not change the record")

	seen, err := eventLedger.Seen(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Only the first application published audit.
	assert.Len(t, recorder.Events(), 1)
}

func TestSyncUser_UpdateOverwritesAttributes(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u1", Email: "a@x.com", DisplayName: "Alice", EventID: "ev1",
	}))
	before, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)

	avatar := "https://img.example/u1.png"
	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u1", Email: "alice@x.com", DisplayName: "Alice B", AvatarURL: &avatar, EventID: "ev2",
	}))

	after, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID, "internal id is immutable across updates")
	assert.Equal(t, "alice@x.com", after.Email)
	assert.Equal(t, "Alice B", after.DisplayName)
	require.NotNil(t, after.AvatarURL)
	assert.Equal(t, avatar, *after.AvatarURL)
}

// Scenario B: a delete followed by a later create/update leaves the record
// active. Whatever is applied last wins, not whatever was sent first.
func TestSyncUser_ResurrectsSoftDeletedRecord(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u1", Email: "a@x.com", EventID: "ev1",
	}))
	require.NoError(t, svc.DeleteUser(ctx, "u1", "ev2"))

	deleted, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)

	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u1", Email: "a@x.com", EventID: "ev3",
	}))

	active, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, active.DeletedAt, "later create/update must clear the soft delete")
	assert.Equal(t, deleted.ID, active.ID, "resurrection keeps the internal id")
}

// A sync that revives a soft-deleted record publishes user_resurrected, not a
// plain user_synced, so downstream consumers can tell the two apart.
func TestSyncUser_ResurrectionPublishesDedicatedAuditAction(t *testing.T) {
	svc, _, _, recorder := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u1", Email: "a@x.com", EventID: "ev1",
	}))
	require.NoError(t, svc.DeleteUser(ctx, "u1", "ev2"))
	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u1", Email: "a@x.com", EventID: "ev3",
	}))

	events := recorder.Events()
	require.Len(t, events, 3)
	actions := make([]string, 0, len(events))
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{
		audit.ActionUserSynced,
		audit.ActionUserDeleted,
		audit.ActionUserResurrected,
	}, actions)
}

func TestDeleteUser_AppliedAfterCreateWins(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u1", Email: "a@x.com", EventID: "ev1",
	}))
	require.NoError(t, svc.DeleteUser(ctx, "u1", "ev2"))

	user, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, user.DeletedAt)
}

// Delete-before-create: the provider can deliver a delete for an identity we
// have never seen. It succeeds as a no-op and records its marker, so a retry
// of the stale delete cannot undo the creation applied in between.
func TestDeleteUser_BeforeCreateIsTolerated(t *testing.T) {
	svc, store, eventLedger, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.DeleteUser(ctx, "ghost", "ev1"))

	_, err := store.FindByExternalID(ctx, "ghost")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	seen, err := eventLedger.Seen(ctx, "ev1")
	require.NoError(t, err)
	assert.True(t, seen, "marker recorded even when no record matched")

	// The out-of-order creation now arrives; a retry of the stale delete is
	// gated by the marker and cannot undo it.
	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "ghost", Email: "g@x.com", EventID: "ev2",
	}))
	require.NoError(t, svc.DeleteUser(ctx, "ghost", "ev1"))

	user, err := store.FindByExternalID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, user.DeletedAt)
}

func TestDeleteUser_RequiresEventID(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.DeleteUser(context.Background(), "u1", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestSyncUser_JITProvisionSkipsLedger(t *testing.T) {
	svc, store, eventLedger, recorder := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SyncUser(ctx, SyncInput{
		ExternalID: "u2", Email: "b@x.com", DisplayName: "Bob",
	}))

	user, err := store.FindByExternalID(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", user.Email)

	// No event id, no marker.
	seen, err := eventLedger.Seen(ctx, "")
	require.NoError(t, err)
	assert.False(t, seen)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionUserProvisioned, events[0].Action)
}

func TestSyncUser_ConcurrentUpsertsConverge(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(n int) {
			done <- svc.SyncUser(ctx, SyncInput{
				ExternalID: "u3", Email: "c@x.com", DisplayName: "C",
			})
		}(i)
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	user, err := store.FindByExternalID(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, "c@x.com", user.Email, "both racers converge on one record")
}

func TestLedgerExpiry_AllowsHarmlessReapplication(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	eventLedger := ledger.NewMemory(24 * time.Hour).WithClock(func() time.Time { return *clock })
	svc, err := New(store, eventLedger)
	require.NoError(t, err)
	ctx := context.Background()

	in := SyncInput{ExternalID: "u1", Email: "a@x.com", EventID: "ev1"}
	require.NoError(t, svc.SyncUser(ctx, in))

	// Redelivery after the retention window re-applies the same content.
	later := now.Add(25 * time.Hour)
	clock = &later
	require.NoError(t, svc.SyncUser(ctx, in))

	user, findErr := store.FindByExternalID(ctx, "u1")
	require.NoError(t, findErr)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Nil(t, user.DeletedAt)
}

func TestIdentity_ActiveHelper(t *testing.T) {
	now := time.Now()
	assert.True(t, identity.User{}.Active())
	assert.False(t, identity.User{DeletedAt: &now}.Active())
}
