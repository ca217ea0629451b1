package extension

import (
	"time"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/auth"
	"github.com/xraph/subvault/lock"
	"github.com/xraph/subvault/plugin"
	"github.com/xraph/subvault/store"
)

// Option configures the subvault Forge extension.
type Option func(*Extension)

// WithStore sets the store for the vault. It takes precedence over
// Config.Driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLocker sets the record locker. It takes precedence over
// Config.LockDriver.
func WithLocker(l lock.Locker) Option {
	return func(e *Extension) {
		e.locker = l
	}
}

// WithAuthorizer sets the authorization gate. It takes precedence over
// Config.JWTSecret.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(e *Extension) {
		e.authorizer = a
	}
}

// WithVaultOption passes a subvault.Option through to the underlying vault.
func WithVaultOption(opt subvault.Option) Option {
	return func(e *Extension) {
		e.vaultOpts = append(e.vaultOpts, opt)
	}
}

// WithPlugin registers a vault plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.vaultOpts = append(e.vaultOpts, subvault.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents the HTTP listener from starting.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableScheduler prevents the batch charge job from running.
func WithDisableScheduler() Option {
	return func(e *Extension) { e.config.DisableScheduler = true }
}

// WithBasePath sets the URL prefix for subvault routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithListenAddr sets the address of the extension's HTTP listener.
func WithListenAddr(addr string) Option {
	return func(e *Extension) { e.config.ListenAddr = addr }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The store backend is chosen from the grove driver. Pass an empty string to
// use the default (unnamed) grove.DB. A store passed with WithStore wins.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}

// WithAllowInsecure lets the HTTP listener run without a JWT secret.
func WithAllowInsecure() Option {
	return func(e *Extension) { e.config.AllowInsecure = true }
}

// WithSchedulerInterval sets how often due subscriptions are charged.
func WithSchedulerInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SchedulerInterval = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
