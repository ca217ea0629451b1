package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/storetest"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// offlineStore wraps an unconnected driver; only query building works.
func offlineStore(t *testing.T) *Store {
	t.Helper()
	db, err := grove.Open(pgdriver.New())
	require.NoError(t, err)
	return New(db)
}

func TestListQuery(t *testing.T) {
	tests := []struct {
		name     string
		opts     subscription.ListOpts
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "unfiltered",
			opts:    subscription.ListOpts{},
			wantSQL: "SELECT " + subscriptionColumns + " FROM subvault_subscriptions ORDER BY id ASC",
		},
		{
			name:     "status and paging",
			opts:     subscription.ListOpts{Status: subscription.StatusPaused, Limit: 5, Offset: 10},
			wantSQL:  "SELECT " + subscriptionColumns + " FROM subvault_subscriptions WHERE status = $1 ORDER BY id ASC LIMIT 5 OFFSET 10",
			wantArgs: []any{"paused"},
		},
		{
			name:     "due",
			opts:     subscription.ListOpts{DueBefore: 1000},
			wantSQL:  "SELECT " + subscriptionColumns + " FROM subvault_subscriptions WHERE last_payment_timestamp <= $1 - interval_seconds ORDER BY id ASC",
			wantArgs: []any{int64(1000)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := listQuery(tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, len(tt.wantArgs), len(args))
			for i := range tt.wantArgs {
				assert.Equal(t, tt.wantArgs[i], args[i])
			}
		})
	}
}

func TestPutSubscriptionQueryKeepsCreatedAt(t *testing.T) {
	s := offlineStore(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	sub := &subscription.Subscription{
		Entity:               types.NewEntity(now),
		ID:                   7,
		Subscriber:           "alice",
		Merchant:             "shop",
		Amount:               10,
		IntervalSeconds:      60,
		LastPaymentTimestamp: now.Unix(),
		Status:               subscription.StatusActive,
	}

	query, args, err := s.pg.NewUpdate(toSubscriptionModel(sub)).
		Column(mutableSubscriptionColumns...).
		WherePK().
		Build()
	require.NoError(t, err)

	assert.Contains(t, query, "subvault_subscriptions")
	assert.NotContains(t, query, "created_at")
	require.Len(t, args, len(mutableSubscriptionColumns)+1)
	assert.Equal(t, int64(7), args[len(args)-1])
}

func TestCreateSettingsQueryIsInsertOnce(t *testing.T) {
	s := offlineStore(t)

	query, args, err := s.pg.NewInsert(toSettingsModel(&settings.Settings{Token: "USDC", Admin: "root"})).
		OnConflict("(id) DO NOTHING").
		Build()
	require.NoError(t, err)

	assert.Contains(t, query, "subvault_settings")
	assert.Contains(t, query, "ON CONFLICT (id) DO NOTHING")
	assert.Contains(t, args, int64(settingsRowID))
}

func TestMigrationsGroup(t *testing.T) {
	assert.Equal(t, "subvault", Migrations.Name())

	ms := Migrations.Migrations()
	require.Len(t, ms, 3)
	for i, m := range ms {
		assert.NotNil(t, m.Up, m.Name)
		assert.NotNil(t, m.Down, m.Name)
		if i > 0 {
			assert.Less(t, ms[i-1].Version, m.Version)
		}
	}
}

// TestConformance runs against a live database when SUBVAULT_POSTGRES_DSN
// is set.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("SUBVAULT_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SUBVAULT_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		require.NoError(t, s.Migrate(ctx))
		_, err = s.pg.NewRaw("TRUNCATE subvault_subscriptions, subvault_settings, subvault_counters").Exec(ctx)
		require.NoError(t, err)
		return s
	})
}
