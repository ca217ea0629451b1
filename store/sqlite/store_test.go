package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/sqlite"
	"github.com/xraph/subvault/store/storetest"
	"github.com/xraph/subvault/subscription"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestMigrateIdempotent(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestFileBackedPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	ctx := context.Background()

	s, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	sub := storetest.NewSubscription("alice", 10, 60, 1000)
	require.NoError(t, s.CreateSubscription(ctx, sub))
	require.NoError(t, s.Close())

	reopened, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck
	require.NoError(t, reopened.Migrate(ctx))

	got, err := reopened.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Subscriber)

	next := storetest.NewSubscription("bob", 10, 60, 1000)
	require.NoError(t, reopened.CreateSubscription(ctx, next))
	assert.Equal(t, subscription.ID(1), next.ID, "id counter must survive reopen")
}

func TestMigrationsRecorded(t *testing.T) {
	s := newStore(t).(*sqlite.Store)

	var applied int
	require.NoError(t, sqlitedriver.Unwrap(s.DB()).
		NewRaw(`SELECT COUNT(*) FROM grove_migrations WHERE "group" = ?`, sqlite.Migrations.Name()).
		Scan(context.Background(), &applied))
	assert.Equal(t, len(sqlite.Migrations.Migrations()), applied)
}
