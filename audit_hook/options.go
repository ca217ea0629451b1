package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used to report recorder failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithEnabledActions restricts auditing to actions. Without it every
// action in Actions is recorded.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = actionSet(actions)
	}
}

// WithDisabledActions records every action except the given ones. Applied
// after WithEnabledActions it narrows that set instead.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = actionSet(Actions)
		}
		for _, a := range actions {
			delete(e.enabled, a)
		}
	}
}

// Actions lists every action the extension can record.
var Actions = []string{
	ActionSubscriptionCreated,
	ActionSubscriptionPaused,
	ActionSubscriptionResumed,
	ActionSubscriptionCancelled,
	ActionFundsDeposited,
	ActionFundsWithdrawn,
	ActionIntervalCharged,
	ActionChargeFailed,
	ActionUsageCharged,
	ActionBatchCharged,
	ActionMinTopupUpdated,
}

func actionSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}
