package subvault

import (
	"context"

	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// CreateParams describes a new subscription.
type CreateParams struct {
	Subscriber      string
	Merchant        string
	Amount          types.Amount
	IntervalSeconds int64
	UsageEnabled    bool
}

// CreateSubscription opens an active subscription with an empty balance and
// returns its id. It does not require Init.
func (v *Vault) CreateSubscription(ctx context.Context, p CreateParams) (subscription.ID, error) {
	if err := v.authorize(ctx, p.Subscriber); err != nil {
		return 0, err
	}
	if p.Merchant == "" {
		return 0, ValidationError{Field: "merchant", Message: "required"}
	}
	if !p.Amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if p.IntervalSeconds <= 0 {
		return 0, ErrInvalidInterval
	}

	now := v.clock.Now()
	sub := &subscription.Subscription{
		Entity:               types.NewEntity(now),
		Subscriber:           p.Subscriber,
		Merchant:             p.Merchant,
		Amount:               p.Amount,
		IntervalSeconds:      p.IntervalSeconds,
		LastPaymentTimestamp: now.Unix(),
		Status:               subscription.StatusActive,
		UsageEnabled:         p.UsageEnabled,
	}
	if err := v.subs.Create(ctx, sub); err != nil {
		return 0, err
	}

	v.emit(ctx, &event.SubscriptionCreated{
		Meta:            event.NewMeta(event.TopicSubscriptionCreated, now.Unix()),
		SubscriptionID:  sub.ID,
		Subscriber:      sub.Subscriber,
		Merchant:        sub.Merchant,
		Amount:          sub.Amount,
		IntervalSeconds: sub.IntervalSeconds,
		UsageEnabled:    sub.UsageEnabled,
	})

	v.logger.Debug("subscription created",
		"id", sub.ID,
		"subscriber", sub.Subscriber,
		"merchant", sub.Merchant,
	)
	return sub.ID, nil
}

// GetSubscription returns a copy of the record.
func (v *Vault) GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	return v.subs.Get(ctx, subID)
}

// ListSubscriptions returns records matching opts in id order.
func (v *Vault) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return v.subs.List(ctx, opts)
}

// DepositFunds credits amount to the prepaid balance. It never changes the
// status: an insufficient_balance subscription stays there until Resume.
// A zero amount is rejected with ErrInvalidAmount even when no minimum is set.
func (v *Vault) DepositFunds(ctx context.Context, subID subscription.ID, subscriber string, amount types.Amount) error {
	if err := v.authorize(ctx, subscriber); err != nil {
		return err
	}

	st, err := v.cfg.Get(ctx)
	if err != nil {
		return err
	}
	if amount < st.MinTopup {
		return ErrBelowMinimumTopup
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	return v.withLock(ctx, subLockKey(subID), func() error {
		sub, err := v.subs.Get(ctx, subID)
		if err != nil {
			return err
		}
		balance, ok := sub.PrepaidBalance.CheckedAdd(amount)
		if !ok {
			return ErrOverflow
		}
		sub.PrepaidBalance = balance
		if err := v.put(ctx, sub); err != nil {
			return err
		}

		v.emit(ctx, &event.Deposited{
			Meta:           event.NewMeta(event.TopicDeposit, v.Now()),
			SubscriptionID: subID,
			Subscriber:     subscriber,
			Amount:         amount,
			Balance:        balance,
		})
		return nil
	})
}

// EstimateTopup returns how much must be deposited so that the balance
// covers the next n interval charges. It never returns a negative amount.
func (v *Vault) EstimateTopup(ctx context.Context, subID subscription.ID, n uint32) (types.Amount, error) {
	sub, err := v.subs.Get(ctx, subID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	required, ok := sub.Amount.CheckedMul(int64(n))
	if !ok {
		return 0, ErrOverflow
	}
	return required.SaturatingSub(sub.PrepaidBalance), nil
}

// WithdrawMerchantFunds records a merchant withdrawal request. Fund movement
// belongs to an external transfer service, so no balance changes here.
func (v *Vault) WithdrawMerchantFunds(ctx context.Context, merchant string, amount types.Amount) error {
	if err := v.authorize(ctx, merchant); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	v.emit(ctx, &event.Withdrawn{
		Meta:     event.NewMeta(event.TopicWithdraw, v.Now()),
		Merchant: merchant,
		Amount:   amount,
	})
	return nil
}
