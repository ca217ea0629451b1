package sqlite

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

const settingsRowID = 1

// Timestamps are stored as unix nanoseconds so ordering and equality
// survive the round trip exactly.

type subscriptionModel struct {
	grove.BaseModel `grove:"table:subvault_subscriptions"`

	ID                   int64  `grove:"id,pk"`
	Subscriber           string `grove:"subscriber,notnull"`
	Merchant             string `grove:"merchant,notnull"`
	Amount               int64  `grove:"amount"`
	IntervalSeconds      int64  `grove:"interval_seconds"`
	LastPaymentTimestamp int64  `grove:"last_payment_timestamp"`
	Status               string `grove:"status,notnull"`
	PrepaidBalance       int64  `grove:"prepaid_balance"`
	UsageEnabled         bool   `grove:"usage_enabled"`
	CreatedAt            int64  `grove:"created_at"`
	UpdatedAt            int64  `grove:"updated_at"`
}

var mutableSubscriptionColumns = []string{
	"subscriber", "merchant", "amount", "interval_seconds", "last_payment_timestamp",
	"status", "prepaid_balance", "usage_enabled", "updated_at",
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:                   int64(s.ID),
		Subscriber:           s.Subscriber,
		Merchant:             s.Merchant,
		Amount:               int64(s.Amount),
		IntervalSeconds:      s.IntervalSeconds,
		LastPaymentTimestamp: s.LastPaymentTimestamp,
		Status:               string(s.Status),
		PrepaidBalance:       int64(s.PrepaidBalance),
		UsageEnabled:         s.UsageEnabled,
		CreatedAt:            s.CreatedAt.UnixNano(),
		UpdatedAt:            s.UpdatedAt.UnixNano(),
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	status, err := subscription.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity:               types.Entity{CreatedAt: time.Unix(0, m.CreatedAt).UTC(), UpdatedAt: time.Unix(0, m.UpdatedAt).UTC()},
		ID:                   subscription.ID(m.ID),
		Subscriber:           m.Subscriber,
		Merchant:             m.Merchant,
		Amount:               types.Amount(m.Amount),
		IntervalSeconds:      m.IntervalSeconds,
		LastPaymentTimestamp: m.LastPaymentTimestamp,
		Status:               status,
		PrepaidBalance:       types.Amount(m.PrepaidBalance),
		UsageEnabled:         m.UsageEnabled,
	}, nil
}

type settingsModel struct {
	grove.BaseModel `grove:"table:subvault_settings"`

	ID              int64  `grove:"id,pk"`
	Token           string `grove:"token,notnull"`
	Admin           string `grove:"admin,notnull"`
	MinTopup        int64  `grove:"min_topup"`
	BillingService  string `grove:"billing_service,notnull"`
	MeteringService string `grove:"metering_service,notnull"`
	CreatedAt       int64  `grove:"created_at"`
	UpdatedAt       int64  `grove:"updated_at"`
}

var mutableSettingsColumns = []string{
	"token", "admin", "min_topup", "billing_service", "metering_service", "updated_at",
}

func toSettingsModel(s *settings.Settings) *settingsModel {
	return &settingsModel{
		ID:              settingsRowID,
		Token:           s.Token,
		Admin:           s.Admin,
		MinTopup:        int64(s.MinTopup),
		BillingService:  s.BillingService,
		MeteringService: s.MeteringService,
		CreatedAt:       s.CreatedAt.UnixNano(),
		UpdatedAt:       s.UpdatedAt.UnixNano(),
	}
}

func fromSettingsModel(m *settingsModel) *settings.Settings {
	return &settings.Settings{
		Entity:          types.Entity{CreatedAt: time.Unix(0, m.CreatedAt).UTC(), UpdatedAt: time.Unix(0, m.UpdatedAt).UTC()},
		Token:           m.Token,
		Admin:           m.Admin,
		MinTopup:        types.Amount(m.MinTopup),
		BillingService:  m.BillingService,
		MeteringService: m.MeteringService,
	}
}
