package subvault_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/auth"
	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

const (
	admin      = "admin"
	alice      = "alice"
	acme       = "acme"
	month      = int64(2_592_000)
	startEpoch = int64(1_700_000_000)
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnEvent(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) topics() []event.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Topic, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventMeta().Topic)
	}
	return out
}

func (r *recorder) last() event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

type harness struct {
	v     *subvault.Vault
	clock *clockwork.FakeClock
	rec   *recorder
}

func newHarness(t *testing.T, opts ...subvault.Option) *harness {
	t.Helper()

	h := &harness{
		clock: clockwork.NewFakeClockAt(time.Unix(startEpoch, 0)),
		rec:   &recorder{},
	}
	base := []subvault.Option{
		subvault.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		subvault.WithClock(h.clock),
		subvault.WithPlugin(h.rec),
	}
	h.v = subvault.New(memory.New(), append(base, opts...)...)

	ctx := context.Background()
	require.NoError(t, h.v.Start(ctx))
	t.Cleanup(func() { _ = h.v.Stop() })
	return h
}

func (h *harness) init(t *testing.T, minTopup types.Amount) {
	t.Helper()
	require.NoError(t, h.v.Init(context.Background(), subvault.InitParams{
		Token:    "usdc",
		Admin:    admin,
		MinTopup: minTopup,
	}))
}

func (h *harness) create(t *testing.T, amount types.Amount, interval int64, usage bool) subscription.ID {
	t.Helper()
	subID, err := h.v.CreateSubscription(context.Background(), subvault.CreateParams{
		Subscriber:      alice,
		Merchant:        acme,
		Amount:          amount,
		IntervalSeconds: interval,
		UsageEnabled:    usage,
	})
	require.NoError(t, err)
	return subID
}

func (h *harness) deposit(t *testing.T, subID subscription.ID, amount types.Amount) {
	t.Helper()
	require.NoError(t, h.v.DepositFunds(context.Background(), subID, alice, amount))
}

func (h *harness) get(t *testing.T, subID subscription.ID) *subscription.Subscription {
	t.Helper()
	sub, err := h.v.GetSubscription(context.Background(), subID)
	require.NoError(t, err)
	return sub
}

func (h *harness) advance(seconds int64) {
	h.clock.Advance(time.Duration(seconds) * time.Second)
}

// ──────────────────────────────────────────────────
// Admin
// ──────────────────────────────────────────────────

func TestInit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.v.GetMinTopup(ctx)
	assert.ErrorIs(t, err, subvault.ErrNotInitialized)

	h.init(t, 1_000000)

	got, err := h.v.GetMinTopup(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(1_000000), got)

	st, err := h.v.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, st.Admin)
	assert.Equal(t, "usdc", st.Token)

	err = h.v.Init(ctx, subvault.InitParams{Admin: "mallory"})
	assert.ErrorIs(t, err, subvault.ErrAlreadyInitialized)
	assert.Equal(t, subvault.CodeAlreadyInitialized, subvault.CodeOf(err))

	err = newHarness(t).v.Init(ctx, subvault.InitParams{Admin: admin, MinTopup: -1})
	assert.ErrorIs(t, err, subvault.ErrInvalidAmount)
}

func TestSetMinTopup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 1_000000)

	require.NoError(t, h.v.SetMinTopup(ctx, admin, 5_000000))
	got, err := h.v.GetMinTopup(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(5_000000), got)

	ev, ok := h.rec.last().(*event.MinTopupUpdated)
	require.True(t, ok)
	assert.Equal(t, types.Amount(1_000000), ev.Previous)
	assert.Equal(t, types.Amount(5_000000), ev.Current)

	assert.ErrorIs(t, h.v.SetMinTopup(ctx, "mallory", 0), subvault.ErrUnauthorized)
	assert.ErrorIs(t, h.v.SetMinTopup(ctx, admin, -1), subvault.ErrInvalidAmount)

	got, err = h.v.GetMinTopup(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(5_000000), got)
}

func TestSetMinTopupRequiresAuthorizedAdmin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, subvault.WithAuthorizer(auth.NewStatic(alice)))
	h.init(t, 0)

	assert.ErrorIs(t, h.v.SetMinTopup(ctx, admin, 1), subvault.ErrUnauthorized)
	// alice passes the gate but is not the stored admin.
	assert.ErrorIs(t, h.v.SetMinTopup(ctx, alice, 1), subvault.ErrUnauthorized)
}

// ──────────────────────────────────────────────────
// Create / Get / Deposit / Estimate
// ──────────────────────────────────────────────────

func TestCreateRoundTrip(t *testing.T) {
	h := newHarness(t)

	first := h.create(t, 10_000000, month, true)
	second := h.create(t, 3, 60, false)
	assert.Equal(t, subscription.ID(0), first)
	assert.Equal(t, subscription.ID(1), second)

	sub := h.get(t, first)
	assert.Equal(t, alice, sub.Subscriber)
	assert.Equal(t, acme, sub.Merchant)
	assert.Equal(t, types.Amount(10_000000), sub.Amount)
	assert.Equal(t, month, sub.IntervalSeconds)
	assert.True(t, sub.UsageEnabled)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.True(t, sub.PrepaidBalance.IsZero())
	assert.Equal(t, startEpoch, sub.LastPaymentTimestamp)

	ev, ok := h.rec.last().(*event.SubscriptionCreated)
	require.True(t, ok)
	assert.Equal(t, second, ev.SubscriptionID)
	assert.Equal(t, event.TopicSubscriptionCreated, ev.Topic)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	tests := []struct {
		name string
		p    subvault.CreateParams
		want error
	}{
		{"zero amount", subvault.CreateParams{Subscriber: alice, Merchant: acme, IntervalSeconds: 1}, subvault.ErrInvalidAmount},
		{"negative amount", subvault.CreateParams{Subscriber: alice, Merchant: acme, Amount: -1, IntervalSeconds: 1}, subvault.ErrInvalidAmount},
		{"zero interval", subvault.CreateParams{Subscriber: alice, Merchant: acme, Amount: 1}, subvault.ErrInvalidInterval},
		{"no subscriber", subvault.CreateParams{Merchant: acme, Amount: 1, IntervalSeconds: 1}, subvault.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.v.CreateSubscription(ctx, tt.p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := h.v.CreateSubscription(ctx, subvault.CreateParams{Subscriber: alice, Amount: 1, IntervalSeconds: 1})
	var ve subvault.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = h.v.GetSubscription(ctx, 0)
	assert.ErrorIs(t, err, subvault.ErrSubscriptionNotFound)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	subID := h.create(t, 10_000000, month, false)

	assert.ErrorIs(t, h.v.DepositFunds(ctx, subID, alice, 1), subvault.ErrNotInitialized)

	h.init(t, 1_000000)
	h.deposit(t, subID, 2_000000)
	assert.Equal(t, types.Amount(2_000000), h.get(t, subID).PrepaidBalance)

	ev, ok := h.rec.last().(*event.Deposited)
	require.True(t, ok)
	assert.Equal(t, types.Amount(2_000000), ev.Balance)

	err := h.v.DepositFunds(ctx, subID, alice, 999_999)
	assert.ErrorIs(t, err, subvault.ErrBelowMinimumTopup)
	assert.Equal(t, subvault.Code(402), subvault.CodeOf(err))
	assert.Equal(t, types.Amount(2_000000), h.get(t, subID).PrepaidBalance)

	assert.ErrorIs(t, h.v.DepositFunds(ctx, 42, alice, 1_000000), subvault.ErrSubscriptionNotFound)
}

func TestDepositOverflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 1, 1, false)

	h.deposit(t, subID, math.MaxInt64)
	assert.ErrorIs(t, h.v.DepositFunds(ctx, subID, alice, 1), subvault.ErrOverflow)
	assert.Equal(t, types.Amount(math.MaxInt64), h.get(t, subID).PrepaidBalance)

	assert.ErrorIs(t, h.v.DepositFunds(ctx, subID, alice, 0), subvault.ErrInvalidAmount)
}

func TestZeroDepositRejectedWithoutMinimum(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, 60, false)
	before := h.rec.topics()

	assert.ErrorIs(t, h.v.DepositFunds(ctx, subID, alice, 0), subvault.ErrInvalidAmount)
	assert.ErrorIs(t, h.v.DepositFunds(ctx, subID, alice, -5), subvault.ErrBelowMinimumTopup)
	assert.True(t, h.get(t, subID).PrepaidBalance.IsZero())
	assert.Equal(t, before, h.rec.topics())
}

func TestDepositDoesNotResume(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, 60, false)

	h.advance(60)
	assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrInsufficientBalance)

	h.deposit(t, subID, 100)
	assert.Equal(t, subscription.StatusInsufficientBalance, h.get(t, subID).Status)

	require.NoError(t, h.v.Resume(ctx, subID, alice))
	require.NoError(t, h.v.ChargeInterval(ctx, subID))
	assert.Equal(t, types.Amount(90), h.get(t, subID).PrepaidBalance)
}

func TestEstimateTopup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10_000000, month, false)
	h.deposit(t, subID, 25_000000)

	tests := []struct {
		n    uint32
		want types.Amount
	}{
		{0, 0},
		{1, 0},
		{2, 0},
		{3, 5_000000},
		{10, 75_000000},
	}
	for _, tt := range tests {
		got, err := h.v.EstimateTopup(ctx, subID, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
	}

	_, err := h.v.EstimateTopup(ctx, 99, 0)
	assert.ErrorIs(t, err, subvault.ErrSubscriptionNotFound)

	big := h.create(t, math.MaxInt64/2, 1, false)
	_, err = h.v.EstimateTopup(ctx, big, 3)
	assert.ErrorIs(t, err, subvault.ErrOverflow)

	assert.Equal(t, types.Amount(25_000000), h.get(t, subID).PrepaidBalance)
}

// ──────────────────────────────────────────────────
// Interval charges
// ──────────────────────────────────────────────────

func TestChargeIntervalScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 1_000000)
	subID := h.create(t, 10_000000, month, false)
	h.deposit(t, subID, 50_000000)

	h.advance(month)
	require.NoError(t, h.v.ChargeInterval(ctx, subID))

	sub := h.get(t, subID)
	assert.Equal(t, types.Amount(40_000000), sub.PrepaidBalance)
	assert.Equal(t, startEpoch+month, sub.LastPaymentTimestamp)
	assert.Equal(t, subscription.StatusActive, sub.Status)

	ev, ok := h.rec.last().(*event.Charged)
	require.True(t, ok)
	assert.Equal(t, types.Amount(40_000000), ev.Balance)

	err := h.v.ChargeInterval(ctx, subID)
	assert.ErrorIs(t, err, subvault.ErrIntervalNotElapsed)
	assert.Equal(t, subvault.Code(1001), subvault.CodeOf(err))
	assert.Equal(t, sub.PrepaidBalance, h.get(t, subID).PrepaidBalance)
	assert.Equal(t, sub.LastPaymentTimestamp, h.get(t, subID).LastPaymentTimestamp)
}

func TestChargeIntervalFailuresDoNotMutate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, 60, false)
	h.deposit(t, subID, 15)

	// Not elapsed.
	before := h.get(t, subID)
	assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrIntervalNotElapsed)
	assert.Equal(t, before, h.get(t, subID))

	// Not active.
	require.NoError(t, h.v.Pause(ctx, subID, alice))
	h.advance(60)
	before = h.get(t, subID)
	assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrNotActive)
	assert.Equal(t, before, h.get(t, subID))
	require.NoError(t, h.v.Resume(ctx, subID, alice))

	// First charge succeeds, the second finds the balance short and only the
	// status changes.
	require.NoError(t, h.v.ChargeInterval(ctx, subID))
	h.advance(60)
	before = h.get(t, subID)
	err := h.v.ChargeInterval(ctx, subID)
	assert.ErrorIs(t, err, subvault.ErrInsufficientBalance)
	assert.True(t, subvault.IsBalanceError(err))

	after := h.get(t, subID)
	assert.Equal(t, subscription.StatusInsufficientBalance, after.Status)
	assert.Equal(t, before.PrepaidBalance, after.PrepaidBalance)
	assert.Equal(t, before.LastPaymentTimestamp, after.LastPaymentTimestamp)

	ev, ok := h.rec.last().(*event.ChargeFailed)
	require.True(t, ok)
	assert.Equal(t, subID, ev.SubscriptionID)

	assert.ErrorIs(t, h.v.ChargeInterval(ctx, 77), subvault.ErrSubscriptionNotFound)
}

func TestChargeIntervalOverflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 1, math.MaxInt64, false)

	assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrOverflow)
}

func TestChargeIntervalAuthorization(t *testing.T) {
	ctx := context.Background()

	t.Run("no settings", func(t *testing.T) {
		h := newHarness(t)
		subID := h.create(t, 1, 1, false)
		assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrUnauthorized)
	})

	t.Run("billing service", func(t *testing.T) {
		gate := auth.NewStatic(alice)
		h := newHarness(t, subvault.WithAuthorizer(gate))
		require.NoError(t, h.v.Init(ctx, subvault.InitParams{Admin: admin, BillingService: "biller"}))
		subID := h.create(t, 1, 1, false)
		h.deposit(t, subID, 5)
		h.advance(1)

		before := h.get(t, subID)
		assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrUnauthorized)
		assert.Equal(t, before, h.get(t, subID))

		gate.Allow("biller")
		require.NoError(t, h.v.ChargeInterval(ctx, subID))

		// The metering service is not configured, so biller cannot charge usage.
		assert.ErrorIs(t, h.v.ChargeUsage(ctx, subID, 1), subvault.ErrUnauthorized)
	})

	t.Run("metering service cannot run interval charges", func(t *testing.T) {
		gate := auth.NewStatic("meter")
		h := newHarness(t, subvault.WithAuthorizer(gate))
		require.NoError(t, h.v.Init(ctx, subvault.InitParams{Admin: admin, MeteringService: "meter"}))
		gate.Allow(alice)
		subID := h.create(t, 1, 1, true)
		h.deposit(t, subID, 5)
		h.advance(1)

		assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrUnauthorized)
		require.NoError(t, h.v.ChargeUsage(ctx, subID, 1))
		assert.Equal(t, types.Amount(4), h.get(t, subID).PrepaidBalance)
	})
}

// ──────────────────────────────────────────────────
// Usage charges
// ──────────────────────────────────────────────────

func TestChargeUsage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, month, true)
	h.deposit(t, subID, 100)

	require.NoError(t, h.v.ChargeUsage(ctx, subID, 40))
	sub := h.get(t, subID)
	assert.Equal(t, types.Amount(60), sub.PrepaidBalance)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, startEpoch, sub.LastPaymentTimestamp)

	assert.ErrorIs(t, h.v.ChargeUsage(ctx, subID, 61), subvault.ErrInsufficientPrepaidBalance)
	assert.ErrorIs(t, h.v.ChargeUsage(ctx, subID, 0), subvault.ErrInvalidAmount)
	assert.Equal(t, types.Amount(60), h.get(t, subID).PrepaidBalance)

	require.NoError(t, h.v.ChargeUsage(ctx, subID, 60))
	sub = h.get(t, subID)
	assert.True(t, sub.PrepaidBalance.IsZero())
	assert.Equal(t, subscription.StatusInsufficientBalance, sub.Status)

	ev, ok := h.rec.last().(*event.UsageCharged)
	require.True(t, ok)
	assert.True(t, ev.Exhausted)

	assert.ErrorIs(t, h.v.ChargeUsage(ctx, subID, 1), subvault.ErrNotActive)
}

func TestChargeUsageNotEnabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, month, false)
	h.deposit(t, subID, 100)

	err := h.v.ChargeUsage(ctx, subID, 1)
	assert.ErrorIs(t, err, subvault.ErrUsageNotEnabled)
	assert.Equal(t, subvault.Code(1003), subvault.CodeOf(err))
	assert.Equal(t, types.Amount(100), h.get(t, subID).PrepaidBalance)
}

// ──────────────────────────────────────────────────
// Batch charges
// ──────────────────────────────────────────────────

func TestBatchChargeDuplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	a := h.create(t, 10, 60, false)
	h.deposit(t, a, 100)
	h.advance(60)

	results, err := h.v.BatchCharge(ctx, []subscription.ID{a, a})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, subvault.CodeIntervalNotElapsed, results[1].ErrorCode)
	assert.Equal(t, types.Amount(90), h.get(t, a).PrepaidBalance)
}

func TestBatchChargeIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)

	funded := h.create(t, 10, 60, false)
	h.deposit(t, funded, 100)
	broke := h.create(t, 10, 60, false)
	paused := h.create(t, 10, 60, false)
	require.NoError(t, h.v.Pause(ctx, paused, alice))
	h.advance(60)

	results, err := h.v.BatchCharge(ctx, []subscription.ID{broke, 999, funded, paused})
	require.NoError(t, err)
	assert.Equal(t, []subvault.BatchChargeResult{
		{ErrorCode: subvault.CodeInsufficientBalance},
		{ErrorCode: subvault.CodeNotFound},
		{Success: true},
		{ErrorCode: subvault.CodeNotActive},
	}, results)

	assert.Equal(t, subscription.StatusInsufficientBalance, h.get(t, broke).Status)
	assert.Equal(t, types.Amount(90), h.get(t, funded).PrepaidBalance)

	ev, ok := h.rec.last().(*event.BatchCharged)
	require.True(t, ok)
	assert.Equal(t, 4, ev.Total)
	assert.Equal(t, 1, ev.Succeeded)
	assert.Equal(t, 3, ev.Failed)
	assert.False(t, ev.BatchID.IsNil())
}

func TestBatchChargeEmptyAndUnauthorized(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, subvault.WithAuthorizer(auth.NewStatic(admin)))
	h.init(t, 0)

	results, err := h.v.BatchCharge(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	denied := newHarness(t, subvault.WithAuthorizer(auth.NewStatic(alice)))
	denied.init(t, 0)
	subID := denied.create(t, 1, 1, false)
	results, err = denied.v.BatchCharge(ctx, []subscription.ID{subID})
	assert.ErrorIs(t, err, subvault.ErrUnauthorized)
	assert.Nil(t, results)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, 60, false)
	h.deposit(t, subID, 35)

	require.NoError(t, h.v.Pause(ctx, subID, alice))
	assert.Equal(t, subscription.StatusPaused, h.get(t, subID).Status)
	require.NoError(t, h.v.Pause(ctx, subID, alice))

	ev, ok := h.rec.last().(*event.StatusChanged)
	require.True(t, ok)
	assert.Equal(t, event.TopicPaused, ev.Topic)
	assert.Equal(t, subscription.StatusPaused, ev.From)

	require.NoError(t, h.v.Resume(ctx, subID, alice))
	assert.Equal(t, subscription.StatusActive, h.get(t, subID).Status)

	res, err := h.v.Cancel(ctx, subID, acme)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(35), res.RefundAmount)
	assert.Equal(t, types.Amount(35), h.get(t, subID).PrepaidBalance)

	ev, ok = h.rec.last().(*event.StatusChanged)
	require.True(t, ok)
	assert.Equal(t, event.TopicCancelled, ev.Topic)
	assert.Equal(t, types.Amount(35), ev.RefundAmount)
}

func TestCancelIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, 60, false)
	h.deposit(t, subID, 100)

	_, err := h.v.Cancel(ctx, subID, alice)
	require.NoError(t, err)
	h.advance(60)

	assert.ErrorIs(t, h.v.Pause(ctx, subID, alice), subvault.ErrInvalidStatusTransition)
	assert.ErrorIs(t, h.v.Resume(ctx, subID, alice), subvault.ErrInvalidStatusTransition)
	assert.ErrorIs(t, h.v.ChargeInterval(ctx, subID), subvault.ErrNotActive)
	assert.Equal(t, subvault.CodeInvalidStatusTransition, subvault.CodeOf(h.v.Pause(ctx, subID, alice)))

	_, err = h.v.Cancel(ctx, subID, alice)
	assert.NoError(t, err)
	assert.Equal(t, subscription.StatusCancelled, h.get(t, subID).Status)
}

func TestLifecycleAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, subvault.WithAuthorizer(auth.NewStatic(alice)))
	h.init(t, 0)
	subID := h.create(t, 10, 60, false)

	assert.ErrorIs(t, h.v.Pause(ctx, subID, "mallory"), subvault.ErrUnauthorized)
	_, err := h.v.Cancel(ctx, subID, "mallory")
	assert.ErrorIs(t, err, subvault.ErrUnauthorized)
	assert.Equal(t, subscription.StatusActive, h.get(t, subID).Status)

	// Authorization happens before the record is read.
	assert.ErrorIs(t, h.v.Pause(ctx, 404, "mallory"), subvault.ErrUnauthorized)
	assert.ErrorIs(t, h.v.Pause(ctx, 404, alice), subvault.ErrSubscriptionNotFound)
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, subvault.WithAuthorizer(auth.NewStatic(acme)))

	require.NoError(t, h.v.WithdrawMerchantFunds(ctx, acme, 50))
	ev, ok := h.rec.last().(*event.Withdrawn)
	require.True(t, ok)
	assert.Equal(t, acme, ev.Merchant)

	assert.ErrorIs(t, h.v.WithdrawMerchantFunds(ctx, alice, 50), subvault.ErrUnauthorized)
	assert.ErrorIs(t, h.v.WithdrawMerchantFunds(ctx, acme, 0), subvault.ErrInvalidAmount)
}

func TestEventTopics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, 60, true)
	h.deposit(t, subID, 100)
	h.advance(60)
	require.NoError(t, h.v.ChargeInterval(ctx, subID))
	require.NoError(t, h.v.ChargeUsage(ctx, subID, 5))
	require.NoError(t, h.v.Pause(ctx, subID, alice))
	require.NoError(t, h.v.Resume(ctx, subID, alice))
	_, err := h.v.Cancel(ctx, subID, alice)
	require.NoError(t, err)

	assert.Equal(t, []event.Topic{
		event.TopicSubscriptionCreated,
		event.TopicDeposit,
		event.TopicCharged,
		event.TopicUsageCharged,
		event.TopicPaused,
		event.TopicResumed,
		event.TopicCancelled,
	}, h.rec.topics())
}

func TestConcurrentChargesChargeOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.init(t, 0)
	subID := h.create(t, 10, 60, false)
	h.deposit(t, subID, 1_000)
	h.advance(60)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.v.ChargeInterval(ctx, subID) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, types.Amount(990), h.get(t, subID).PrepaidBalance)
}

// slowStore stretches the read inside a charge past the lock ttl.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowStore) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	time.Sleep(s.delay)
	return s.Store.GetSubscription(ctx, subID)
}

func TestSlowChargeKeepsLockPastTTL(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Unix(startEpoch, 0))
	v := subvault.New(&slowStore{Store: memory.New(), delay: 100 * time.Millisecond},
		subvault.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		subvault.WithClock(clock),
		subvault.WithLockTTL(10*time.Millisecond),
	)
	require.NoError(t, v.Start(ctx))
	t.Cleanup(func() { _ = v.Stop() })

	require.NoError(t, v.Init(ctx, subvault.InitParams{Token: "usdc", Admin: admin}))
	subID, err := v.CreateSubscription(ctx, subvault.CreateParams{
		Subscriber: alice, Merchant: acme, Amount: 10, IntervalSeconds: 60,
	})
	require.NoError(t, err)
	require.NoError(t, v.DepositFunds(ctx, subID, alice, 1_000))
	clock.Advance(60 * time.Second)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.ChargeInterval(ctx, subID) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	sub, err := v.GetSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(990), sub.PrepaidBalance)
}
