// Package subscription defines the prepaid subscription record, its
// lifecycle status machine, and the storage contract for records.
package subscription

import (
	"fmt"
	"math"

	"github.com/xraph/subvault/types"
)

// ID is the dense, monotonically allocated subscription identifier.
// The first subscription receives ID 0. IDs are never reused.
type ID uint32

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusActive              Status = "active"
	StatusPaused              Status = "paused"
	StatusCancelled           Status = "cancelled"
	StatusInsufficientBalance Status = "insufficient_balance"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{
	StatusActive,
	StatusPaused,
	StatusCancelled,
	StatusInsufficientBalance,
}

// IsValid reports whether s is one of the declared statuses.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

// ParseStatus converts a stored or wire value into a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.IsValid() {
		return "", fmt.Errorf("subscription: unknown status %q", v)
	}
	return s, nil
}

// Subscription is a recurring billing agreement between a subscriber and a
// merchant, funded from a prepaid balance.
type Subscription struct {
	types.Entity
	ID                   ID           `json:"id"`
	Subscriber           string       `json:"subscriber"`
	Merchant             string       `json:"merchant"`
	Amount               types.Amount `json:"amount"`
	IntervalSeconds      int64        `json:"interval_seconds"`
	LastPaymentTimestamp int64        `json:"last_payment_timestamp"`
	Status               Status       `json:"status"`
	PrepaidBalance       types.Amount `json:"prepaid_balance"`
	UsageEnabled         bool         `json:"usage_enabled"`
}

// Clone returns an independent copy of the record.
func (s *Subscription) Clone() *Subscription {
	c := *s
	return &c
}

// NextChargeAt returns the earliest timestamp at which an interval charge is
// allowed, and false if last_payment_timestamp + interval_seconds overflows.
func (s *Subscription) NextChargeAt() (int64, bool) {
	if s.IntervalSeconds > 0 && s.LastPaymentTimestamp > math.MaxInt64-s.IntervalSeconds {
		return 0, false
	}
	return s.LastPaymentTimestamp + s.IntervalSeconds, true
}
