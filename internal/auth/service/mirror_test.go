package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/backoffice/internal/auth/store"
	"github.com/aussiebroadwan/backoffice/internal/identitysync"
	"github.com/stretchr/testify/require"
)

func createEnv(t *testing.T, id, version int64, username, password string, roles ...string) identitysync.Envelope {
	t.Helper()
	return identitysync.NewEnvelope(identitysync.OpCreate, id, version, &identitysync.Snapshot{
		Username: username,
		Password: mustHash(t, password),
		Roles:    roles,
	})
}

func TestMirrorCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	env := createEnv(t, 10, 1, "carol", "pw", "CASHIER")

	outcome, err := f.mirror.Apply(ctx, env)
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	// A redelivery carries a new message id but the same idempotency key.
	replay := env
	replay.MessageID = identitysync.NewEnvelope(identitysync.OpCreate, 10, 1, env.Snapshot).MessageID
	outcome, err = f.mirror.Apply(ctx, replay)
	require.NoError(t, err)
	require.Equal(t, Duplicate, outcome)

	got, err := f.store.Identities().GetByUsername(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, int64(10), got.ID)
	require.Equal(t, []string{"CASHIER"}, got.Roles)

	pair, err := f.tokens.Login(ctx, "carol", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestMirrorDiscardsStaleVersions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mirror.Apply(ctx, createEnv(t, 10, 1, "carol", "pw"))
	require.NoError(t, err)

	late := identitysync.NewEnvelope(identitysync.OpUpdate, 10, 2, &identitysync.Snapshot{
		Username: "carol", Password: mustHash(t, "old"), Roles: []string{"CASHIER"},
	})
	outcome, err := f.mirror.Apply(ctx, late)
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	update := identitysync.NewEnvelope(identitysync.OpUpdate, 10, 3, &identitysync.Snapshot{
		Username: "carol", Password: mustHash(t, "new"), Roles: []string{"ADMIN"},
	})
	outcome, err = f.mirror.Apply(ctx, update)
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	// Once its idempotency key is pruned, a redelivered old version is only
	// caught by the version check.
	_, err = f.store.SyncLog().PruneProcessed(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	outcome, err = f.mirror.Apply(ctx, late)
	require.NoError(t, err)
	require.Equal(t, Stale, outcome)

	got, err := f.store.Identities().GetByID(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"ADMIN"}, got.Roles)

	t.Run("unversioned always applies", func(t *testing.T) {
		plain := identitysync.NewEnvelope(identitysync.OpUpdate, 10, 0, &identitysync.Snapshot{
			Username: "carol", Password: mustHash(t, "pw0"), Roles: []string{"MARKETING"},
		})
		outcome, err := f.mirror.Apply(ctx, plain)
		require.NoError(t, err)
		require.Equal(t, Applied, outcome)

		got, err := f.store.Identities().GetByID(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, []string{"MARKETING"}, got.Roles)
	})
}

func TestMirrorDeleteRestoreRevokes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mirror.Apply(ctx, createEnv(t, 10, 1, "carol", "pw"))
	require.NoError(t, err)
	pair, err := f.tokens.Login(ctx, "carol", "pw")
	require.NoError(t, err)

	outcome, err := f.mirror.Apply(ctx, identitysync.NewEnvelope(identitysync.OpDelete, 10, 2, nil))
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	require.True(t, f.loggedOut(t, pair.AccessToken))
	_, err = f.tokens.Login(ctx, "carol", "pw")
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	outcome, err = f.mirror.Apply(ctx, identitysync.NewEnvelope(identitysync.OpRestore, 10, 3, nil))
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	_, err = f.tokens.Login(ctx, "carol", "pw")
	require.NoError(t, err)
}

func TestMirrorDeleteRetriesRevocationOnRedelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mirror.Apply(ctx, createEnv(t, 10, 1, "carol", "pw"))
	require.NoError(t, err)
	pair, err := f.tokens.Login(ctx, "carol", "pw")
	require.NoError(t, err)

	del := identitysync.NewEnvelope(identitysync.OpDelete, 10, 2, nil)

	f.cache.failMark = errCacheDown
	_, err = f.mirror.Apply(ctx, del)
	require.ErrorIs(t, err, errCacheDown)
	require.False(t, f.loggedOut(t, pair.AccessToken))

	f.cache.failMark = nil
	outcome, err := f.mirror.Apply(ctx, del)
	require.NoError(t, err)
	require.Equal(t, Duplicate, outcome)
	require.True(t, f.loggedOut(t, pair.AccessToken))
}

func TestMirrorHardDeleteKeepsTombstone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mirror.Apply(ctx, createEnv(t, 10, 1, "carol", "pw"))
	require.NoError(t, err)
	pair, err := f.tokens.Login(ctx, "carol", "pw")
	require.NoError(t, err)

	update := identitysync.NewEnvelope(identitysync.OpUpdate, 10, 2, &identitysync.Snapshot{
		Username: "carol", Password: mustHash(t, "pw"),
	})
	_, err = f.mirror.Apply(ctx, update)
	require.NoError(t, err)

	outcome, err := f.mirror.Apply(ctx, identitysync.NewEnvelope(identitysync.OpDeletePermanent, 10, 3, nil))
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)
	require.True(t, f.loggedOut(t, pair.AccessToken))

	_, err = f.store.Identities().GetByID(ctx, 10)
	require.ErrorIs(t, err, store.ErrNotFound)

	// A late redelivery of the update must not bring it back.
	_, err = f.store.SyncLog().PruneProcessed(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	outcome, err = f.mirror.Apply(ctx, update)
	require.NoError(t, err)
	require.Equal(t, Stale, outcome)

	_, err = f.store.Identities().GetByID(ctx, 10)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMirrorDefersMessagesThatSkipAhead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	create := createEnv(t, 10, 1, "carol", "pw")
	del := identitysync.NewEnvelope(identitysync.OpDelete, 10, 2, nil)
	restore := identitysync.NewEnvelope(identitysync.OpRestore, 10, 3, nil)

	// Delete and restore travel on other streams and can beat the create.
	outcome, err := f.mirror.Apply(ctx, del)
	require.ErrorIs(t, err, ErrOutOfOrder)
	require.Equal(t, Deferred, outcome)

	outcome, err = f.mirror.Apply(ctx, restore)
	require.ErrorIs(t, err, ErrOutOfOrder)
	require.Equal(t, Deferred, outcome)

	version, err := f.store.SyncLog().Version(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, version)

	outcome, err = f.mirror.Apply(ctx, create)
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)

	t.Run("restore still waits for delete", func(t *testing.T) {
		outcome, err := f.mirror.Apply(ctx, restore)
		require.ErrorIs(t, err, ErrOutOfOrder)
		require.Equal(t, Deferred, outcome)
	})

	t.Run("redelivery applies in order", func(t *testing.T) {
		outcome, err := f.mirror.Apply(ctx, del)
		require.NoError(t, err)
		require.Equal(t, Applied, outcome)

		outcome, err = f.mirror.Apply(ctx, restore)
		require.NoError(t, err)
		require.Equal(t, Applied, outcome)

		got, err := f.store.Identities().GetByID(ctx, 10)
		require.NoError(t, err)
		require.False(t, got.Deleted())

		_, err = f.tokens.Login(ctx, "carol", "pw")
		require.NoError(t, err)
	})

	t.Run("unversioned delete of unknown identity is retried", func(t *testing.T) {
		_, err := f.mirror.Apply(ctx, identitysync.NewEnvelope(identitysync.OpDelete, 99, 0, nil))
		require.ErrorIs(t, err, store.ErrNotFound)

		fresh, err := f.store.SyncLog().Reserve(ctx, "delete:99:0", time.Now())
		require.NoError(t, err)
		require.True(t, fresh, "key rolled back with the failed apply")
	})
}

func TestMirrorRejectsBadMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	plaintext := identitysync.NewEnvelope(identitysync.OpCreate, 11, 1, &identitysync.Snapshot{
		Username: "dave", Password: "hunter2",
	})
	outcome, err := f.mirror.Apply(ctx, plaintext)
	require.NoError(t, err)
	require.Equal(t, Rejected, outcome)

	noSnapshot := identitysync.Envelope{Op: identitysync.OpCreate, IdentityID: 11, Version: 1}
	outcome, err = f.mirror.Apply(ctx, noSnapshot)
	require.NoError(t, err)
	require.Equal(t, Rejected, outcome)

	_, err = f.store.Identities().GetByID(ctx, 11)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMirrorUsernameConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.mirror.Apply(ctx, createEnv(t, 10, 1, "carol", "pw"))
	require.NoError(t, err)

	clash := createEnv(t, 12, 1, "carol", "pw")
	_, err = f.mirror.Apply(ctx, clash)
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	// Rolled back, so once the old row goes the same message applies.
	_, err = f.mirror.Apply(ctx, identitysync.NewEnvelope(identitysync.OpDeletePermanent, 10, 2, nil))
	require.NoError(t, err)

	outcome, err := f.mirror.Apply(ctx, clash)
	require.NoError(t, err)
	require.Equal(t, Applied, outcome)
}

func TestHousekeepingCleanup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, 1, "alice", "pw")

	_, err := f.tokens.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = f.store.SyncLog().Reserve(ctx, "create:1:1", time.Now())
	require.NoError(t, err)

	hk := NewHousekeepingService(f.store, testLogger(), time.Hour)
	hk.Now = func() time.Time { return time.Now().Add(30 * 24 * time.Hour) }
	hk.Cleanup(ctx)

	active, err := f.store.Credentials().ListActiveByOwner(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, active)

	fresh, err := f.store.SyncLog().Reserve(ctx, "create:1:1", time.Now())
	require.NoError(t, err)
	require.True(t, fresh, "pruned key can be reserved again")

	t.Run("start and stop", func(t *testing.T) {
		hk := NewHousekeepingService(f.store, testLogger(), time.Hour)
		hk.Start()
		hk.Stop()
	})
}
