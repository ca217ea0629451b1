package subvault

import (
	"context"

	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/types"
)

// InitParams is the one-time vault configuration.
type InitParams struct {
	Token           string
	Admin           string
	MinTopup        types.Amount
	BillingService  string
	MeteringService string
}

// Init writes the vault settings. It is a bootstrap call and requires no
// authorization; a second call fails with ErrAlreadyInitialized.
func (v *Vault) Init(ctx context.Context, p InitParams) error {
	if p.Admin == "" {
		return ValidationError{Field: "admin", Message: "required"}
	}
	if p.MinTopup < 0 {
		return ErrInvalidAmount
	}

	return v.withLock(ctx, settingsLockKey, func() error {
		st := &settings.Settings{
			Entity:          types.NewEntity(v.clock.Now()),
			Token:           p.Token,
			Admin:           p.Admin,
			MinTopup:        p.MinTopup,
			BillingService:  p.BillingService,
			MeteringService: p.MeteringService,
		}
		if err := v.cfg.Create(ctx, st); err != nil {
			return err
		}

		v.logger.Info("vault initialized",
			"admin", p.Admin,
			"token", p.Token,
			"min_topup", p.MinTopup,
		)
		return nil
	})
}

// SetMinTopup changes the minimum deposit. The caller must be authorized as
// admin and admin must be the stored admin.
func (v *Vault) SetMinTopup(ctx context.Context, admin string, value types.Amount) error {
	if err := v.authorize(ctx, admin); err != nil {
		return err
	}

	return v.withLock(ctx, settingsLockKey, func() error {
		st, err := v.cfg.Get(ctx)
		if err != nil {
			return err
		}
		if st.Admin != admin {
			return ErrUnauthorized
		}
		if value < 0 {
			return ErrInvalidAmount
		}

		previous := st.MinTopup
		st.MinTopup = value
		st.Touch(v.clock.Now())
		if err := v.cfg.Put(ctx, st); err != nil {
			return err
		}

		v.emit(ctx, &event.MinTopupUpdated{
			Meta:     event.NewMeta(event.TopicMinTopupUpdated, v.Now()),
			Admin:    admin,
			Previous: previous,
			Current:  value,
		})
		return nil
	})
}

// GetMinTopup returns the minimum deposit.
func (v *Vault) GetMinTopup(ctx context.Context) (types.Amount, error) {
	st, err := v.cfg.Get(ctx)
	if err != nil {
		return 0, err
	}
	return st.MinTopup, nil
}

// GetSettings returns a copy of the vault settings.
func (v *Vault) GetSettings(ctx context.Context) (*settings.Settings, error) {
	return v.cfg.Get(ctx)
}
