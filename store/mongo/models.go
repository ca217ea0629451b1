package mongo

import (
	"time"

	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
	"github.com/xraph/subvault/types"
)

// ==================== Subscription models ====================

type subscriptionModel struct {
	ID                   int64     `bson:"_id"`
	Subscriber           string    `bson:"subscriber"`
	Merchant             string    `bson:"merchant"`
	Amount               int64     `bson:"amount"`
	IntervalSeconds      int64     `bson:"interval_seconds"`
	LastPaymentTimestamp int64     `bson:"last_payment_timestamp"`
	Status               string    `bson:"status"`
	PrepaidBalance       int64     `bson:"prepaid_balance"`
	UsageEnabled         bool      `bson:"usage_enabled"`
	CreatedAt            time.Time `bson:"created_at"`
	UpdatedAt            time.Time `bson:"updated_at"`
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
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	status, err := subscription.ParseStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity:               types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
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

// ==================== Settings models ====================

const settingsDocID = "settings"

type settingsModel struct {
	ID              string    `bson:"_id"`
	Token           string    `bson:"token"`
	Admin           string    `bson:"admin"`
	MinTopup        int64     `bson:"min_topup"`
	BillingService  string    `bson:"billing_service,omitempty"`
	MeteringService string    `bson:"metering_service,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toSettingsModel(s *settings.Settings) *settingsModel {
	return &settingsModel{
		ID:              settingsDocID,
		Token:           s.Token,
		Admin:           s.Admin,
		MinTopup:        int64(s.MinTopup),
		BillingService:  s.BillingService,
		MeteringService: s.MeteringService,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func fromSettingsModel(m *settingsModel) *settings.Settings {
	return &settings.Settings{
		Entity:          types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		Token:           m.Token,
		Admin:           m.Admin,
		MinTopup:        types.Amount(m.MinTopup),
		BillingService:  m.BillingService,
		MeteringService: m.MeteringService,
	}
}

// ==================== Counter models ====================

type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
