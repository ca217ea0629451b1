// Package memory is an in-process store.Store used by tests and single-node
// deployments that do not need durability.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	subscriptions map[subscription.ID]*subscription.Subscription
	nextID        uint64
	settings      *settings.Settings
}

func New() *Store {
	return &Store{
		subscriptions: make(map[subscription.ID]*subscription.Subscription),
	}
}

// Subscription Store implementation

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextID > math.MaxUint32 {
		return subvault.ErrOverflow
	}
	sub.ID = subscription.ID(s.nextID)
	s.nextID++
	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID subscription.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID]; ok {
		return sub.Clone(), nil
	}
	return nil, subvault.ErrSubscriptionNotFound
}

func (s *Store) PutSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[sub.ID]; !ok {
		return subvault.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		if opts.DueBefore != 0 {
			next, ok := sub.NextChargeAt()
			if !ok || next > opts.DueBefore {
				continue
			}
		}
		result = append(result, sub.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// Settings Store implementation

func (s *Store) GetSettings(_ context.Context) (*settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, subvault.ErrNotInitialized
	}
	return s.settings.Clone(), nil
}

func (s *Store) CreateSettings(_ context.Context, st *settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings != nil {
		return subvault.ErrAlreadyInitialized
	}
	s.settings = st.Clone()
	return nil
}

func (s *Store) PutSettings(_ context.Context, st *settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		return subvault.ErrNotInitialized
	}
	s.settings = st.Clone()
	return nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
