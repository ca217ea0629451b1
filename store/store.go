// Package store defines the unified persistence contract of the vault.
// Backends live in the memory, postgres, sqlite and mongo subpackages.
package store

import (
	"context"

	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/subscription"
)

// Store is the unified storage interface for all vault records.
// Methods are declared explicitly instead of embedding the per-entity
// interfaces so that names stay unambiguous.
//
// Backends return independent copies from reads and store independent
// copies on writes. A record only changes through an explicit Put.
type Store interface {
	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error)
	PutSubscription(ctx context.Context, s *subscription.Subscription) error
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)

	// Settings methods
	GetSettings(ctx context.Context) (*settings.Settings, error)
	CreateSettings(ctx context.Context, s *settings.Settings) error
	PutSettings(ctx context.Context, s *settings.Settings) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// SubscriptionStore adapts a Store to subscription.Store.
func SubscriptionStore(s Store) subscription.Store { return subscriptionAdapter{s} }

// SettingsStore adapts a Store to settings.Store.
func SettingsStore(s Store) settings.Store { return settingsAdapter{s} }

type subscriptionAdapter struct{ s Store }

func (a subscriptionAdapter) Create(ctx context.Context, sub *subscription.Subscription) error {
	return a.s.CreateSubscription(ctx, sub)
}

func (a subscriptionAdapter) Get(ctx context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	return a.s.GetSubscription(ctx, subID)
}

func (a subscriptionAdapter) Put(ctx context.Context, sub *subscription.Subscription) error {
	return a.s.PutSubscription(ctx, sub)
}

func (a subscriptionAdapter) List(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return a.s.ListSubscriptions(ctx, opts)
}

type settingsAdapter struct{ s Store }

func (a settingsAdapter) Get(ctx context.Context) (*settings.Settings, error) {
	return a.s.GetSettings(ctx)
}

func (a settingsAdapter) Create(ctx context.Context, st *settings.Settings) error {
	return a.s.CreateSettings(ctx, st)
}

func (a settingsAdapter) Put(ctx context.Context, st *settings.Settings) error {
	return a.s.PutSettings(ctx, st)
}
