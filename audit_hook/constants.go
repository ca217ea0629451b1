package audithook

// Action constants for audit events.
const (
	// Subscription actions
	ActionSubscriptionCreated   = "subscription.created"
	ActionSubscriptionPaused    = "subscription.paused"
	ActionSubscriptionResumed   = "subscription.resumed"
	ActionSubscriptionCancelled = "subscription.cancelled"

	// Balance actions
	ActionFundsDeposited = "funds.deposited"
	ActionFundsWithdrawn = "funds.withdrawn"

	// Charge actions
	ActionIntervalCharged = "charge.interval"
	ActionChargeFailed    = "charge.failed"
	ActionUsageCharged    = "charge.usage"
	ActionBatchCharged    = "charge.batch"

	// Settings actions
	ActionMinTopupUpdated = "settings.min_topup_updated"
)

// Resource constants for audit events.
const (
	ResourceSubscription = "subscription"
	ResourceMerchant     = "merchant"
	ResourceBatch        = "batch"
	ResourceSettings     = "settings"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryUsage        = "usage"
	CategoryPayment      = "payment"
	CategoryAdmin        = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
