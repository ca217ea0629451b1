// Package observability provides a metrics plugin for the vault that records
// event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated = (*MetricsExtension)(nil)
	_ plugin.OnDeposited           = (*MetricsExtension)(nil)
	_ plugin.OnPaused              = (*MetricsExtension)(nil)
	_ plugin.OnResumed             = (*MetricsExtension)(nil)
	_ plugin.OnCancelled           = (*MetricsExtension)(nil)
	_ plugin.OnCharged             = (*MetricsExtension)(nil)
	_ plugin.OnChargeFailed        = (*MetricsExtension)(nil)
	_ plugin.OnUsageCharged        = (*MetricsExtension)(nil)
	_ plugin.OnBatchCharged        = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn           = (*MetricsExtension)(nil)
	_ plugin.OnMinTopupUpdated     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records vault-wide metrics.
// Register it as a vault plugin to track billing activity.
type MetricsExtension struct {
	factory MetricFactory

	// Subscription metrics
	SubscriptionCreated   Counter
	SubscriptionPaused    Counter
	SubscriptionResumed   Counter
	SubscriptionCancelled Counter

	// Balance metrics
	Deposits        Counter
	DepositAmount   Histogram
	Withdrawals     Counter
	WithdrawnAmount Histogram
	RefundAmount    Histogram

	// Charge metrics
	IntervalCharged      Counter
	IntervalChargeFailed Counter
	ChargedAmount        Histogram
	UsageCharged         Counter
	UsageAmount          Histogram
	BalanceExhausted     Counter

	// Batch metrics
	Batches          Counter
	BatchSize        Histogram
	BatchItemsFailed Counter

	// Settings metrics
	MinTopupUpdated Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Subscription metrics
		SubscriptionCreated:   factory.Counter("subvault.subscription.created"),
		SubscriptionPaused:    factory.Counter("subvault.subscription.paused"),
		SubscriptionResumed:   factory.Counter("subvault.subscription.resumed"),
		SubscriptionCancelled: factory.Counter("subvault.subscription.cancelled"),

		// Balance metrics
		Deposits:        factory.Counter("subvault.deposit.count"),
		DepositAmount:   factory.Histogram("subvault.deposit.amount"),
		Withdrawals:     factory.Counter("subvault.withdraw.count"),
		WithdrawnAmount: factory.Histogram("subvault.withdraw.amount"),
		RefundAmount:    factory.Histogram("subvault.cancel.refund_amount"),

		// Charge metrics
		IntervalCharged:      factory.Counter("subvault.charge.interval.success"),
		IntervalChargeFailed: factory.Counter("subvault.charge.interval.insufficient"),
		ChargedAmount:        factory.Histogram("subvault.charge.interval.amount"),
		UsageCharged:         factory.Counter("subvault.charge.usage.success"),
		UsageAmount:          factory.Histogram("subvault.charge.usage.amount"),
		BalanceExhausted:     factory.Counter("subvault.balance.exhausted"),

		// Batch metrics
		Batches:          factory.Counter("subvault.batch.runs"),
		BatchSize:        factory.Histogram("subvault.batch.size"),
		BatchItemsFailed: factory.Counter("subvault.batch.items.failed"),

		// Settings metrics
		MinTopupUpdated: factory.Counter("subvault.settings.min_topup.updated"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *event.SubscriptionCreated) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnPaused implements plugin.OnPaused.
func (m *MetricsExtension) OnPaused(_ context.Context, _ *event.StatusChanged) error {
	m.SubscriptionPaused.Inc()
	return nil
}

// OnResumed implements plugin.OnResumed.
func (m *MetricsExtension) OnResumed(_ context.Context, _ *event.StatusChanged) error {
	m.SubscriptionResumed.Inc()
	return nil
}

// OnCancelled implements plugin.OnCancelled.
func (m *MetricsExtension) OnCancelled(_ context.Context, ev *event.StatusChanged) error {
	m.SubscriptionCancelled.Inc()
	m.RefundAmount.Observe(float64(ev.RefundAmount))
	return nil
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnDeposited implements plugin.OnDeposited.
func (m *MetricsExtension) OnDeposited(_ context.Context, ev *event.Deposited) error {
	m.Deposits.Inc()
	m.DepositAmount.Observe(float64(ev.Amount))
	return nil
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, ev *event.Withdrawn) error {
	m.Withdrawals.Inc()
	m.WithdrawnAmount.Observe(float64(ev.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (m *MetricsExtension) OnCharged(_ context.Context, ev *event.Charged) error {
	m.IntervalCharged.Inc()
	m.ChargedAmount.Observe(float64(ev.Amount))
	return nil
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (m *MetricsExtension) OnChargeFailed(_ context.Context, _ *event.ChargeFailed) error {
	m.IntervalChargeFailed.Inc()
	return nil
}

// OnUsageCharged implements plugin.OnUsageCharged.
func (m *MetricsExtension) OnUsageCharged(_ context.Context, ev *event.UsageCharged) error {
	m.UsageCharged.Inc()
	m.UsageAmount.Observe(float64(ev.Amount))
	if ev.Exhausted {
		m.BalanceExhausted.Inc()
	}
	return nil
}

// OnBatchCharged implements plugin.OnBatchCharged.
func (m *MetricsExtension) OnBatchCharged(_ context.Context, ev *event.BatchCharged) error {
	m.Batches.Inc()
	m.BatchSize.Observe(float64(ev.Total))
	m.BatchItemsFailed.Add(float64(ev.Failed))
	return nil
}

// OnMinTopupUpdated implements plugin.OnMinTopupUpdated.
func (m *MetricsExtension) OnMinTopupUpdated(_ context.Context, _ *event.MinTopupUpdated) error {
	m.MinTopupUpdated.Inc()
	return nil
}
