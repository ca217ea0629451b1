// Package audithook bridges vault events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated = (*Extension)(nil)
	_ plugin.OnDeposited           = (*Extension)(nil)
	_ plugin.OnPaused              = (*Extension)(nil)
	_ plugin.OnResumed             = (*Extension)(nil)
	_ plugin.OnCancelled           = (*Extension)(nil)
	_ plugin.OnCharged             = (*Extension)(nil)
	_ plugin.OnChargeFailed        = (*Extension)(nil)
	_ plugin.OnUsageCharged        = (*Extension)(nil)
	_ plugin.OnBatchCharged        = (*Extension)(nil)
	_ plugin.OnWithdrawn           = (*Extension)(nil)
	_ plugin.OnMinTopupUpdated     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a backend-neutral audit record.
type AuditEvent struct {
	// EventID is the id of the vault event this record was built from.
	EventID    string         `json:"event_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	Timestamp  int64          `json:"timestamp"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges vault events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, ev *event.SubscriptionCreated) error {
	return e.record(ctx, ev.Meta, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(ev.SubscriptionID), CategorySubscription, nil,
		"subscriber", ev.Subscriber,
		"merchant", ev.Merchant,
		"amount", int64(ev.Amount),
		"interval_seconds", ev.IntervalSeconds,
		"usage_enabled", ev.UsageEnabled,
	)
}

// OnPaused implements plugin.OnPaused.
func (e *Extension) OnPaused(ctx context.Context, ev *event.StatusChanged) error {
	return e.statusChanged(ctx, ActionSubscriptionPaused, ev)
}

// OnResumed implements plugin.OnResumed.
func (e *Extension) OnResumed(ctx context.Context, ev *event.StatusChanged) error {
	return e.statusChanged(ctx, ActionSubscriptionResumed, ev)
}

// OnCancelled implements plugin.OnCancelled.
func (e *Extension) OnCancelled(ctx context.Context, ev *event.StatusChanged) error {
	return e.statusChanged(ctx, ActionSubscriptionCancelled, ev,
		"refund_amount", int64(ev.RefundAmount),
	)
}

func (e *Extension) statusChanged(ctx context.Context, action string, ev *event.StatusChanged, extra ...any) error {
	kv := append([]any{
		"authorizer", ev.Authorizer,
		"from", string(ev.From),
		"to", string(ev.To),
	}, extra...)
	return e.record(ctx, ev.Meta, action, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(ev.SubscriptionID), CategorySubscription, nil,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnDeposited implements plugin.OnDeposited.
func (e *Extension) OnDeposited(ctx context.Context, ev *event.Deposited) error {
	return e.record(ctx, ev.Meta, ActionFundsDeposited, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(ev.SubscriptionID), CategoryPayment, nil,
		"subscriber", ev.Subscriber,
		"amount", int64(ev.Amount),
		"balance", int64(ev.Balance),
	)
}

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, ev *event.Withdrawn) error {
	return e.record(ctx, ev.Meta, ActionFundsWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceMerchant, ev.Merchant, CategoryPayment, nil,
		"amount", int64(ev.Amount),
	)
}

// ──────────────────────────────────────────────────
// Charge hooks
// ──────────────────────────────────────────────────

// OnCharged implements plugin.OnCharged.
func (e *Extension) OnCharged(ctx context.Context, ev *event.Charged) error {
	return e.record(ctx, ev.Meta, ActionIntervalCharged, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, subID(ev.SubscriptionID), CategoryBilling, nil,
		"amount", int64(ev.Amount),
		"balance", int64(ev.Balance),
		"last_payment_timestamp", ev.LastPaymentTimestamp,
	)
}

// OnChargeFailed implements plugin.OnChargeFailed.
func (e *Extension) OnChargeFailed(ctx context.Context, ev *event.ChargeFailed) error {
	return e.record(ctx, ev.Meta, ActionChargeFailed, SeverityWarning, OutcomeFailure,
		ResourceSubscription, subID(ev.SubscriptionID), CategoryBilling,
		fmt.Errorf("balance %d below charge %d", ev.Balance, ev.Amount),
		"amount", int64(ev.Amount),
		"balance", int64(ev.Balance),
	)
}

// OnUsageCharged implements plugin.OnUsageCharged.
func (e *Extension) OnUsageCharged(ctx context.Context, ev *event.UsageCharged) error {
	severity := SeverityInfo
	if ev.Exhausted {
		severity = SeverityWarning
	}
	return e.record(ctx, ev.Meta, ActionUsageCharged, severity, OutcomeSuccess,
		ResourceSubscription, subID(ev.SubscriptionID), CategoryUsage, nil,
		"amount", int64(ev.Amount),
		"balance", int64(ev.Balance),
		"exhausted", ev.Exhausted,
	)
}

// OnBatchCharged implements plugin.OnBatchCharged.
func (e *Extension) OnBatchCharged(ctx context.Context, ev *event.BatchCharged) error {
	outcome := OutcomeSuccess
	switch {
	case ev.Succeeded == 0:
		outcome = OutcomeFailure
	case ev.Failed > 0:
		outcome = OutcomePartial
	}
	return e.record(ctx, ev.Meta, ActionBatchCharged, SeverityInfo, outcome,
		ResourceBatch, ev.BatchID.String(), CategoryBilling, nil,
		"total", ev.Total,
		"succeeded", ev.Succeeded,
		"failed", ev.Failed,
	)
}

// ──────────────────────────────────────────────────
// Settings hooks
// ──────────────────────────────────────────────────

// OnMinTopupUpdated implements plugin.OnMinTopupUpdated.
func (e *Extension) OnMinTopupUpdated(ctx context.Context, ev *event.MinTopupUpdated) error {
	return e.record(ctx, ev.Meta, ActionMinTopupUpdated, SeverityInfo, OutcomeSuccess,
		ResourceSettings, "min_topup", CategoryAdmin, nil,
		"admin", ev.Admin,
		"previous", int64(ev.Previous),
		"current", int64(ev.Current),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func subID(v subscription.ID) string {
	return strconv.FormatUint(uint64(v), 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	meta event.Meta,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	md := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		md[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		md["error"] = err.Error()
	}

	evt := &AuditEvent{
		EventID:    meta.ID.String(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   md,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		Timestamp:  meta.Timestamp,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
