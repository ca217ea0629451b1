package subvault

import (
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// Re-export common types so callers rarely need the subpackages.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// SubscriptionID is re-exported from subscription package.
type SubscriptionID = subscription.ID

// Status is re-exported from subscription package.
type Status = subscription.Status

// Re-export status values.
const (
	StatusActive              = subscription.StatusActive
	StatusPaused              = subscription.StatusPaused
	StatusCancelled           = subscription.StatusCancelled
	StatusInsufficientBalance = subscription.StatusInsufficientBalance
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
