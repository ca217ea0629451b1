// Package storetest holds the behavioral checks every store.Store backend
// must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run executes the conformance checks against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"DenseIDs", testDenseIDs},
		{"GetMissing", testGetMissing},
		{"PutReplaces", testPutReplaces},
		{"PutMissing", testPutMissing},
		{"ReadsAreCopies", testReadsAreCopies},
		{"ListFilters", testListFilters},
		{"Settings", testSettings},
		{"Ping", testPing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewSubscription builds a valid active record for tests.
func NewSubscription(subscriber string, amount types.Amount, interval, last int64) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:               types.NewEntity(time.Unix(last, 0)),
		Subscriber:           subscriber,
		Merchant:             "merchant",
		Amount:               amount,
		IntervalSeconds:      interval,
		LastPaymentTimestamp: last,
		Status:               subscription.StatusActive,
	}
}

func testDenseIDs(t *testing.T, s store.Store) {
	ctx := context.Background()
	for want := subscription.ID(0); want < 3; want++ {
		sub := NewSubscription("alice", 10, 60, 1000)
		require.NoError(t, s.CreateSubscription(ctx, sub))
		assert.Equal(t, want, sub.ID)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetSubscription(context.Background(), 99)
	assert.ErrorIs(t, err, subvault.ErrSubscriptionNotFound)
}

func testPutReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := NewSubscription("alice", 10, 60, 1000)
	sub.UsageEnabled = true
	require.NoError(t, s.CreateSubscription(ctx, sub))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Subscriber)
	assert.Equal(t, "merchant", got.Merchant)
	assert.Equal(t, types.Amount(10), got.Amount)
	assert.Equal(t, int64(60), got.IntervalSeconds)
	assert.Equal(t, int64(1000), got.LastPaymentTimestamp)
	assert.True(t, got.UsageEnabled)

	got.PrepaidBalance = 500
	got.Status = subscription.StatusPaused
	got.LastPaymentTimestamp = 2000
	require.NoError(t, s.PutSubscription(ctx, got))

	again, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(500), again.PrepaidBalance)
	assert.Equal(t, subscription.StatusPaused, again.Status)
	assert.Equal(t, int64(2000), again.LastPaymentTimestamp)
}

func testPutMissing(t *testing.T, s store.Store) {
	sub := NewSubscription("alice", 10, 60, 1000)
	sub.ID = 42
	assert.ErrorIs(t, s.PutSubscription(context.Background(), sub), subvault.ErrSubscriptionNotFound)
}

func testReadsAreCopies(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := NewSubscription("alice", 10, 60, 1000)
	require.NoError(t, s.CreateSubscription(ctx, sub))

	sub.PrepaidBalance = 1_000_000
	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(0), got.PrepaidBalance, "caller mutation leaked into store")

	got.PrepaidBalance = 7
	again, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(0), again.PrepaidBalance, "read mutation leaked into store")
}

func testListFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewSubscription("a", 10, 100, 1000) // due at 1100
	b := NewSubscription("b", 10, 500, 1000) // due at 1500
	c := NewSubscription("c", 10, 100, 1000)
	for _, sub := range []*subscription.Subscription{a, b, c} {
		require.NoError(t, s.CreateSubscription(ctx, sub))
	}
	c.Status = subscription.StatusPaused
	require.NoError(t, s.PutSubscription(ctx, c))

	all, err := s.ListSubscriptions(ctx, subscription.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []subscription.ID{0, 1, 2}, ids(all))

	active, err := s.ListSubscriptions(ctx, subscription.ListOpts{Status: subscription.StatusActive})
	require.NoError(t, err)
	assert.Equal(t, []subscription.ID{0, 1}, ids(active))

	due, err := s.ListSubscriptions(ctx, subscription.ListOpts{Status: subscription.StatusActive, DueBefore: 1200})
	require.NoError(t, err)
	assert.Equal(t, []subscription.ID{0}, ids(due))

	page, err := s.ListSubscriptions(ctx, subscription.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []subscription.ID{1}, ids(page))
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetSettings(ctx)
	assert.ErrorIs(t, err, subvault.ErrNotInitialized)
	assert.ErrorIs(t, s.PutSettings(ctx, &settings.Settings{Admin: "x"}), subvault.ErrNotInitialized)

	st := &settings.Settings{
		Entity:         types.NewEntity(time.Unix(1000, 0)),
		Token:          "USDC",
		Admin:          "admin",
		MinTopup:       1_000000,
		BillingService: "biller",
	}
	require.NoError(t, s.CreateSettings(ctx, st))
	assert.ErrorIs(t, s.CreateSettings(ctx, st), subvault.ErrAlreadyInitialized)

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USDC", got.Token)
	assert.Equal(t, "admin", got.Admin)
	assert.Equal(t, types.Amount(1_000000), got.MinTopup)
	assert.Equal(t, "biller", got.BillingService)
	assert.Empty(t, got.MeteringService)

	got.MinTopup = 5
	require.NoError(t, s.PutSettings(ctx, got))
	again, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(5), again.MinTopup)
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}

func ids(subs []*subscription.Subscription) []subscription.ID {
	out := make([]subscription.ID, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}
