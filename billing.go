package subvault

import (
	"context"

	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/id"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// BatchChargeResult is the outcome of one item of a BatchCharge call.
type BatchChargeResult struct {
	Success   bool `json:"success"`
	ErrorCode Code `json:"error_code"`
}

// ChargeInterval debits one interval amount once the interval has elapsed.
// The caller must be the admin or the configured billing service.
//
// When the balance cannot cover the charge the subscription moves to
// insufficient_balance, that status is persisted, and ErrInsufficientBalance
// is returned.
func (v *Vault) ChargeInterval(ctx context.Context, subID subscription.ID) error {
	st, err := v.gate(ctx)
	if err != nil {
		return err
	}
	if err := v.authorizeCharge(ctx, st, st.CanChargeInterval); err != nil {
		return err
	}
	return v.chargeOne(ctx, subID)
}

func (v *Vault) chargeOne(ctx context.Context, subID subscription.ID) error {
	return v.withLock(ctx, subLockKey(subID), func() error {
		sub, err := v.subs.Get(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Status != subscription.StatusActive {
			return ErrNotActive
		}
		next, ok := sub.NextChargeAt()
		if !ok {
			return ErrOverflow
		}
		now := v.Now()
		if now < next {
			return ErrIntervalNotElapsed
		}

		if sub.PrepaidBalance < sub.Amount {
			return v.markInsufficient(ctx, sub, now)
		}

		balance, ok := sub.PrepaidBalance.CheckedSub(sub.Amount)
		if !ok {
			return ErrOverflow
		}
		sub.PrepaidBalance = balance
		sub.LastPaymentTimestamp = now
		if err := v.put(ctx, sub); err != nil {
			return err
		}

		v.emit(ctx, &event.Charged{
			Meta:                 event.NewMeta(event.TopicCharged, now),
			SubscriptionID:       subID,
			Amount:               sub.Amount,
			Balance:              balance,
			LastPaymentTimestamp: now,
		})
		return nil
	})
}

// markInsufficient persists the insufficient_balance status and reports the
// failed charge.
func (v *Vault) markInsufficient(ctx context.Context, sub *subscription.Subscription, now int64) error {
	if err := subscription.ValidateTransition(sub.Status, subscription.StatusInsufficientBalance); err != nil {
		return err
	}
	sub.Status = subscription.StatusInsufficientBalance
	if err := v.put(ctx, sub); err != nil {
		return err
	}

	v.emit(ctx, &event.ChargeFailed{
		Meta:           event.NewMeta(event.TopicChargeFailed, now),
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Balance:        sub.PrepaidBalance,
	})

	v.logger.Info("subscription marked insufficient balance",
		"id", sub.ID,
		"amount", sub.Amount,
		"balance", sub.PrepaidBalance,
	)
	return ErrInsufficientBalance
}

// ChargeUsage debits a metered amount. The caller must be the admin or the
// configured metering service. A charge that leaves the balance at exactly
// zero moves the subscription to insufficient_balance.
func (v *Vault) ChargeUsage(ctx context.Context, subID subscription.ID, usage types.Amount) error {
	st, err := v.gate(ctx)
	if err != nil {
		return err
	}
	if err := v.authorizeCharge(ctx, st, st.CanChargeUsage); err != nil {
		return err
	}

	return v.withLock(ctx, subLockKey(subID), func() error {
		sub, err := v.subs.Get(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Status != subscription.StatusActive {
			return ErrNotActive
		}
		if !sub.UsageEnabled {
			return ErrUsageNotEnabled
		}
		if !usage.IsPositive() {
			return ErrInvalidAmount
		}
		if sub.PrepaidBalance < usage {
			return ErrInsufficientPrepaidBalance
		}

		balance, ok := sub.PrepaidBalance.CheckedSub(usage)
		if !ok {
			return ErrOverflow
		}
		sub.PrepaidBalance = balance
		exhausted := balance.IsZero()
		if exhausted {
			if err := subscription.ValidateTransition(sub.Status, subscription.StatusInsufficientBalance); err != nil {
				return err
			}
			sub.Status = subscription.StatusInsufficientBalance
		}
		if err := v.put(ctx, sub); err != nil {
			return err
		}

		v.emit(ctx, &event.UsageCharged{
			Meta:           event.NewMeta(event.TopicUsageCharged, v.Now()),
			SubscriptionID: subID,
			Amount:         usage,
			Balance:        balance,
			Exhausted:      exhausted,
		})
		return nil
	})
}

// BatchCharge runs an interval charge for each id in order. Only the admin
// check can fail the whole call; every per-item failure is reported in that
// item's result and never affects other items. Duplicate ids are charged
// independently.
func (v *Vault) BatchCharge(ctx context.Context, ids []subscription.ID) ([]BatchChargeResult, error) {
	st, err := v.gate(ctx)
	if err != nil {
		return nil, err
	}
	if err := v.authorize(ctx, st.Admin); err != nil {
		return nil, err
	}

	results := make([]BatchChargeResult, len(ids))
	succeeded := 0
	for i, subID := range ids {
		err := v.chargeOne(ctx, subID)
		if err == nil {
			results[i] = BatchChargeResult{Success: true}
			succeeded++
			continue
		}
		code := CodeOf(err)
		results[i] = BatchChargeResult{ErrorCode: code}
		if code == CodeInternal {
			v.logger.Warn("batch item failed",
				"id", subID,
				"error", err,
			)
		}
	}

	if len(ids) > 0 {
		v.emit(ctx, &event.BatchCharged{
			Meta:      event.NewMeta(event.TopicBatchCharged, v.Now()),
			BatchID:   id.NewBatchID(),
			Total:     len(ids),
			Succeeded: succeeded,
			Failed:    len(ids) - succeeded,
		})
	}
	return results, nil
}
