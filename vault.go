package subvault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/subvault/auth"
	"github.com/xraph/subvault/event"
	"github.com/xraph/subvault/lock"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/settings"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/subscription"
)

// DefaultLockTTL bounds how long a single operation may hold a record lock.
const DefaultLockTTL = 30 * time.Second

const settingsLockKey = "subvault:settings"

// Vault is the subscription billing engine. Every exported operation runs
// as one atomic unit per subscription id.
type Vault struct {
	store   store.Store
	subs    subscription.Store
	cfg     settings.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	auth    auth.Authorizer
	locks   lock.Locker
	clock   clockwork.Clock
	lockTTL time.Duration
}

// New creates a new Vault backed by s.
func New(s store.Store, opts ...Option) *Vault {
	v := &Vault{
		store:   s,
		subs:    store.SubscriptionStore(s),
		cfg:     store.SettingsStore(s),
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		auth:    auth.AllowAll(),
		locks:   lock.NewMemory(),
		clock:   clockwork.NewRealClock(),
		lockTTL: DefaultLockTTL,
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Option configures a Vault instance.
type Option func(*Vault)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
		v.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(v *Vault) {
		_ = v.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(v *Vault) {
		v.plugins.WithTimeout(d)
	}
}

// WithAuthorizer sets the authorization gate. The default approves every
// principal, which is only suitable for trusted in-process callers.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(v *Vault) {
		v.auth = a
	}
}

// WithLocker sets the per-record locker. Use lock.RedisLocker when several
// processes share one store.
func WithLocker(l lock.Locker) Option {
	return func(v *Vault) {
		v.locks = l
	}
}

// WithClock sets the clock used for charge timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(v *Vault) {
		v.clock = c
	}
}

// WithLockTTL sets how long a distributed record lock survives a crashed
// holder. The in-memory locker holds until release regardless.
func WithLockTTL(d time.Duration) Option {
	return func(v *Vault) {
		if d > 0 {
			v.lockTTL = d
		}
	}
}

// Start migrates the store and initializes plugins.
func (v *Vault) Start(ctx context.Context) error {
	if err := v.store.Migrate(ctx); err != nil {
		return fmt.Errorf("subvault: migrate: %w", err)
	}

	v.plugins.EmitInit(ctx, v)

	v.logger.Info("subvault started",
		"plugins", v.plugins.Count(),
		"lock_ttl", v.lockTTL,
	)

	return nil
}

// Stop shuts plugins down and closes the store.
func (v *Vault) Stop() error {
	ctx := context.Background()
	v.plugins.EmitShutdown(ctx)

	return v.store.Close()
}

// Store returns the underlying store.
func (v *Vault) Store() store.Store { return v.store }

// Plugins returns the plugin registry.
func (v *Vault) Plugins() *plugin.Registry { return v.plugins }

// Now returns the current vault timestamp in unix seconds.
func (v *Vault) Now() int64 { return v.clock.Now().Unix() }

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (v *Vault) authorize(ctx context.Context, principal string) error {
	if principal == "" || !v.auth.Authorized(ctx, principal) {
		return ErrUnauthorized
	}
	return nil
}

// authorizeCharge succeeds when the caller may act as a configured
// principal that allowed accepts.
func (v *Vault) authorizeCharge(ctx context.Context, st *settings.Settings, allowed func(principal string) bool) error {
	for _, p := range st.Principals() {
		if allowed(p) && v.auth.Authorized(ctx, p) {
			return nil
		}
	}
	return ErrUnauthorized
}

// gate loads the settings for an admin-gated operation. A vault without
// settings has no admin, so the caller is unauthorized.
func (v *Vault) gate(ctx context.Context) (*settings.Settings, error) {
	st, err := v.cfg.Get(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return st, nil
}

func subLockKey(subID subscription.ID) string {
	return fmt.Sprintf("subvault:sub:%d", subID)
}

// withLock runs fn while holding key.
func (v *Vault) withLock(ctx context.Context, key string, fn func() error) error {
	release, err := v.locks.Acquire(ctx, key, v.lockTTL)
	if err != nil {
		return fmt.Errorf("subvault: lock %s: %w", key, err)
	}
	defer release()
	return fn()
}

// put stamps and persists a whole record.
func (v *Vault) put(ctx context.Context, sub *subscription.Subscription) error {
	sub.Touch(v.clock.Now())
	return v.subs.Put(ctx, sub)
}

func (v *Vault) emit(ctx context.Context, ev event.Event) {
	v.plugins.Emit(ctx, ev)
}
