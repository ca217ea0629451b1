// Package plugin provides the extension points of the vault. Every emitted
// event is dispatched to the registered plugins that implement its hook.
package plugin

import (
	"context"

	"github.com/xraph/subvault/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the vault starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, vault any) error
}

// OnShutdown is called when the vault stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Catch-all sink
// ──────────────────────────────────────────────────

// OnEvent receives every event regardless of topic, after the typed hooks.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, ev event.Event) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called after a subscription is created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, ev *event.SubscriptionCreated) error
}

// OnDeposited is called after funds are deposited.
type OnDeposited interface {
	Plugin
	OnDeposited(ctx context.Context, ev *event.Deposited) error
}

// OnPaused is called after a subscription is paused.
type OnPaused interface {
	Plugin
	OnPaused(ctx context.Context, ev *event.StatusChanged) error
}

// OnResumed is called after a subscription is resumed.
type OnResumed interface {
	Plugin
	OnResumed(ctx context.Context, ev *event.StatusChanged) error
}

// OnCancelled is called after a subscription is cancelled.
type OnCancelled interface {
	Plugin
	OnCancelled(ctx context.Context, ev *event.StatusChanged) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnCharged is called after a successful interval charge.
type OnCharged interface {
	Plugin
	OnCharged(ctx context.Context, ev *event.Charged) error
}

// OnChargeFailed is called when an interval charge marks a subscription
// insufficient_balance.
type OnChargeFailed interface {
	Plugin
	OnChargeFailed(ctx context.Context, ev *event.ChargeFailed) error
}

// OnUsageCharged is called after a successful usage charge.
type OnUsageCharged interface {
	Plugin
	OnUsageCharged(ctx context.Context, ev *event.UsageCharged) error
}

// OnBatchCharged is called once per BatchCharge run.
type OnBatchCharged interface {
	Plugin
	OnBatchCharged(ctx context.Context, ev *event.BatchCharged) error
}

// ──────────────────────────────────────────────────
// Merchant and admin hooks
// ──────────────────────────────────────────────────

// OnWithdrawn is called after a merchant withdrawal request.
type OnWithdrawn interface {
	Plugin
	OnWithdrawn(ctx context.Context, ev *event.Withdrawn) error
}

// OnMinTopupUpdated is called after the admin changes the minimum top-up.
type OnMinTopupUpdated interface {
	Plugin
	OnMinTopupUpdated(ctx context.Context, ev *event.MinTopupUpdated) error
}
