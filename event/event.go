// Package event defines the payloads the vault emits after each successful
// mutation. Topic names are stable and shared with downstream indexers.
package event

import (
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Topic names an event kind.
type Topic string

const (
	TopicSubscriptionCreated Topic = "sub_new"
	TopicDeposit             Topic = "deposit"
	TopicCharged             Topic = "charged"
	TopicChargeFailed        Topic = "charge_failed"
	TopicUsageCharged        Topic = "usage_charged"
	TopicBatchCharged        Topic = "batch_charged"
	TopicPaused              Topic = "paused"
	TopicResumed             Topic = "resumed"
	TopicCancelled           Topic = "cancelled"
	TopicWithdraw            Topic = "withdraw"
	TopicMinTopupUpdated     Topic = "min_topup_updated"
)

// Event is implemented by every payload.
type Event interface {
	EventMeta() Meta
}

// Meta is embedded in every payload.
type Meta struct {
	ID    id.EventID `json:"event_id"`
	Topic Topic      `json:"topic"`
	// Timestamp is the vault clock in unix seconds when the event was raised.
	Timestamp int64 `json:"timestamp"`
}

// NewMeta stamps a fresh event id.
func NewMeta(topic Topic, ts int64) Meta {
	return Meta{ID: id.NewEventID(), Topic: topic, Timestamp: ts}
}

// EventMeta implements Event.
func (m Meta) EventMeta() Meta { return m }

// SubscriptionCreated is raised by CreateSubscription.
type SubscriptionCreated struct {
	Meta
	SubscriptionID  subscription.ID `json:"subscription_id"`
	Subscriber      string          `json:"subscriber"`
	Merchant        string          `json:"merchant"`
	Amount          types.Amount    `json:"amount"`
	IntervalSeconds int64           `json:"interval_seconds"`
	UsageEnabled    bool            `json:"usage_enabled"`
}

// Deposited is raised by DepositFunds.
type Deposited struct {
	Meta
	SubscriptionID subscription.ID `json:"subscription_id"`
	Subscriber     string          `json:"subscriber"`
	Amount         types.Amount    `json:"amount"`
	Balance        types.Amount    `json:"balance"`
}

// Charged is raised by a successful interval charge.
type Charged struct {
	Meta
	SubscriptionID       subscription.ID `json:"subscription_id"`
	Amount               types.Amount    `json:"amount"`
	Balance              types.Amount    `json:"balance"`
	LastPaymentTimestamp int64           `json:"last_payment_timestamp"`
}

// ChargeFailed is raised when an interval charge finds the balance short and
// moves the subscription to insufficient_balance.
type ChargeFailed struct {
	Meta
	SubscriptionID subscription.ID `json:"subscription_id"`
	Amount         types.Amount    `json:"amount"`
	Balance        types.Amount    `json:"balance"`
}

// UsageCharged is raised by a successful usage charge. Exhausted is set when
// the charge drained the balance to zero.
type UsageCharged struct {
	Meta
	SubscriptionID subscription.ID `json:"subscription_id"`
	Amount         types.Amount    `json:"amount"`
	Balance        types.Amount    `json:"balance"`
	Exhausted      bool            `json:"exhausted"`
}

// BatchCharged summarizes one BatchCharge run.
type BatchCharged struct {
	Meta
	BatchID   id.BatchID `json:"batch_id"`
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
}

// StatusChanged is raised by pause, resume and cancel; Topic tells which.
type StatusChanged struct {
	Meta
	SubscriptionID subscription.ID     `json:"subscription_id"`
	Authorizer     string              `json:"authorizer"`
	From           subscription.Status `json:"from"`
	To             subscription.Status `json:"to"`
	// RefundAmount is the balance at cancellation. It is reported only.
	RefundAmount types.Amount `json:"refund_amount,omitempty"`
}

// Withdrawn is raised by WithdrawMerchantFunds.
type Withdrawn struct {
	Meta
	Merchant string       `json:"merchant"`
	Amount   types.Amount `json:"amount"`
}

// MinTopupUpdated is raised by SetMinTopup.
type MinTopupUpdated struct {
	Meta
	Admin    string       `json:"admin"`
	Previous types.Amount `json:"previous"`
	Current  types.Amount `json:"current"`
}
