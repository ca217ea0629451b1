package subvault

import (
	"context"

	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// CancelResult reports the outcome of Cancel.
type CancelResult struct {
	// RefundAmount is the prepaid balance at cancellation. It is reported
	// only; paying it out is left to an external transfer service.
	RefundAmount types.Amount `json:"refund_amount"`
}

// Pause moves an active subscription to paused.
//
// The vault checks only that the caller may act as authorizer. Whether
// authorizer must be the subscriber or the merchant is up to the
// configured auth.Authorizer.
func (v *Vault) Pause(ctx context.Context, subID subscription.ID, authorizer string) error {
	_, err := v.transition(ctx, subID, authorizer, subscription.StatusPaused, event.TopicPaused)
	return err
}

// Resume moves a paused or insufficient_balance subscription back to active.
func (v *Vault) Resume(ctx context.Context, subID subscription.ID, authorizer string) error {
	_, err := v.transition(ctx, subID, authorizer, subscription.StatusActive, event.TopicResumed)
	return err
}

// Cancel moves a subscription to the terminal cancelled status. The balance
// is left untouched.
func (v *Vault) Cancel(ctx context.Context, subID subscription.ID, authorizer string) (*CancelResult, error) {
	sub, err := v.transition(ctx, subID, authorizer, subscription.StatusCancelled, event.TopicCancelled)
	if err != nil {
		return nil, err
	}
	return &CancelResult{RefundAmount: sub.PrepaidBalance}, nil
}

func (v *Vault) transition(ctx context.Context, subID subscription.ID, authorizer string, to subscription.Status, topic event.Topic) (*subscription.Subscription, error) {
	if err := v.authorize(ctx, authorizer); err != nil {
		return nil, err
	}

	var sub *subscription.Subscription
	err := v.withLock(ctx, subLockKey(subID), func() error {
		var err error
		sub, err = v.subs.Get(ctx, subID)
		if err != nil {
			return err
		}
		from := sub.Status
		if err := subscription.ValidateTransition(from, to); err != nil {
			return err
		}
		sub.Status = to
		if err := v.put(ctx, sub); err != nil {
			return err
		}

		ev := &event.StatusChanged{
			Meta:           event.NewMeta(topic, v.Now()),
			SubscriptionID: subID,
			Authorizer:     authorizer,
			From:           from,
			To:             to,
		}
		if to == subscription.StatusCancelled {
			ev.RefundAmount = sub.PrepaidBalance
		}
		v.emit(ctx, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}
