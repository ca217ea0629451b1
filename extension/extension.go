// Package extension provides the Forge extension adapter for subvault.
//
// It implements the forge.Extension interface to integrate the vault
// into a Forge application with DI registration and lifecycle management.
// Besides the vault it can run the batch charge scheduler and an HTTP
// listener serving the JSON API.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.subvault" or "subvault" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/api"
	"github.com/xraph/subvault/auth"
	"github.com/xraph/subvault/lock"
	"github.com/xraph/subvault/scheduler"
	"github.com/xraph/subvault/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "subvault"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Prepaid subscription billing vault"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts subvault as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	vault      *subvault.Vault
	store      store.Store
	locker     lock.Locker
	authorizer auth.Authorizer
	server     *api.Server
	http       *echo.Echo
	sched      *scheduler.Scheduler
	vaultOpts  []subvault.Option
	useGrove   bool
}

// New creates a new subvault Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Vault returns the underlying vault.
// This is nil until Register is called.
func (e *Extension) Vault() *subvault.Vault { return e.vault }

// Server returns the HTTP handlers, for mounting on another echo instance.
// This is nil until Register is called.
func (e *Extension) Server() *api.Server { return e.server }

// Register implements [forge.Extension]. It loads configuration, opens
// the store, builds the vault and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.resolveStore(fapp)
		if err != nil {
			return err
		}
		e.store = s
	}
	if e.locker == nil {
		l, err := NewLocker(e.config)
		if err != nil {
			return err
		}
		e.locker = l
	}
	if e.authorizer == nil {
		if e.servesHTTP() {
			if err := RequireServeAuth(e.config); err != nil {
				return err
			}
		}
		e.authorizer = NewAuthorizer(e.config)
		if e.servesHTTP() && e.config.JWTSecret == "" {
			e.Logger().Warn("subvault: serving the API without authentication (allow_insecure)")
		}
	}

	e.vault = subvault.New(e.store, e.buildVaultOpts()...)
	e.server = api.NewServer(e.vault, api.WithBasePath(e.config.BasePath))

	if !e.config.DisableScheduler {
		sched, err := scheduler.New(e.vault,
			scheduler.WithInterval(e.config.SchedulerInterval),
			scheduler.WithPageSize(e.config.SchedulerPageSize),
			scheduler.WithLocker(e.locker),
			scheduler.WithCaller(AdminCaller(e.vault, e.authorizer, slog.Default())),
		)
		if err != nil {
			return err
		}
		e.sched = sched
	}

	if err := vessel.Provide(fapp.Container(), func() (*subvault.Vault, error) {
		return e.vault, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*api.Server, error) {
		return e.server, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.vault == nil {
		return errors.New("subvault: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.vault.Start(ctx); err != nil {
			return err
		}
	}

	if e.sched != nil {
		// Runs outlive the start context.
		if err := e.sched.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	if e.servesHTTP() {
		e.http = e.server.Echo()
		go func() {
			if err := e.http.Start(e.config.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.Logger().Warn("subvault: http listener stopped", forge.F("error", err.Error()))
			}
		}()
		e.Logger().Debug("subvault: http listener started",
			forge.F("addr", e.config.ListenAddr),
			forge.F("base_path", e.config.BasePath),
		)
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	var errs []error
	if e.http != nil {
		if err := e.http.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.sched != nil {
		if err := e.sched.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.vault != nil {
		if err := e.vault.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := e.locker.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("subvault: store not initialized")
	}
	return e.store.Ping(ctx)
}

// servesHTTP reports whether Start runs the extension's own listener.
func (e *Extension) servesHTTP() bool {
	return !e.config.DisableRoutes && e.config.ListenAddr != ""
}

// resolveStore picks the grove.DB from the container when WithGroveDatabase
// was used, and otherwise opens Config.Driver.
func (e *Extension) resolveStore(fapp forge.App) (store.Store, error) {
	if !e.useGrove {
		return OpenStore(context.Background(), e.config)
	}

	var (
		db  *grove.DB
		err error
	)
	if e.config.GroveDatabase != "" {
		db, err = vessel.InjectNamed[*grove.DB](fapp.Container(), e.config.GroveDatabase)
	} else {
		db, err = vessel.Inject[*grove.DB](fapp.Container())
	}
	if err != nil {
		return nil, fmt.Errorf("subvault: resolve grove database %q: %w", e.config.GroveDatabase, err)
	}
	return StoreFromGrove(db)
}

// buildVaultOpts constructs subvault.Option values from the resolved config.
func (e *Extension) buildVaultOpts() []subvault.Option {
	opts := make([]subvault.Option, 0, len(e.vaultOpts)+4)
	opts = append(opts,
		subvault.WithLocker(e.locker),
		subvault.WithAuthorizer(e.authorizer),
	)
	if e.config.LockTTL > 0 {
		opts = append(opts, subvault.WithLockTTL(e.config.LockTTL))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, subvault.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Pass-through options win over config-derived ones.
	return append(opts, e.vaultOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("subvault: configuration is required but not found in config files; " +
				"ensure 'extensions.subvault' or 'subvault' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("subvault: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_scheduler", e.config.DisableScheduler),
		forge.F("base_path", e.config.BasePath),
		forge.F("driver", e.config.Driver),
		forge.F("lock_driver", e.config.LockDriver),
		forge.F("scheduler_interval", e.config.SchedulerInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.subvault", "subvault"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("subvault: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("subvault: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.LockDriver == "" {
		cfg.LockDriver = defaults.LockDriver
	}
	if cfg.SchedulerInterval == 0 {
		cfg.SchedulerInterval = defaults.SchedulerInterval
	}
	if cfg.SchedulerPageSize == 0 {
		cfg.SchedulerPageSize = defaults.SchedulerPageSize
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableScheduler {
		yamlConfig.DisableScheduler = true
	}
	if programmaticConfig.AllowInsecure {
		yamlConfig.AllowInsecure = true
	}

	fillString(&yamlConfig.BasePath, programmaticConfig.BasePath)
	fillString(&yamlConfig.ListenAddr, programmaticConfig.ListenAddr)
	fillString(&yamlConfig.Driver, programmaticConfig.Driver)
	fillString(&yamlConfig.DSN, programmaticConfig.DSN)
	fillString(&yamlConfig.Database, programmaticConfig.Database)
	fillString(&yamlConfig.LockDriver, programmaticConfig.LockDriver)
	fillString(&yamlConfig.RedisAddr, programmaticConfig.RedisAddr)
	fillString(&yamlConfig.RedisPassword, programmaticConfig.RedisPassword)
	fillString(&yamlConfig.GroveDatabase, programmaticConfig.GroveDatabase)
	fillString(&yamlConfig.JWTSecret, programmaticConfig.JWTSecret)
	fillString(&yamlConfig.JWTIssuer, programmaticConfig.JWTIssuer)

	if yamlConfig.RedisDB == 0 {
		yamlConfig.RedisDB = programmaticConfig.RedisDB
	}
	if yamlConfig.SchedulerInterval == 0 {
		yamlConfig.SchedulerInterval = programmaticConfig.SchedulerInterval
	}
	if yamlConfig.SchedulerPageSize == 0 {
		yamlConfig.SchedulerPageSize = programmaticConfig.SchedulerPageSize
	}
	if yamlConfig.LockTTL == 0 {
		yamlConfig.LockTTL = programmaticConfig.LockTTL
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}

func fillString(dst *string, fallback string) {
	if *dst == "" {
		*dst = fallback
	}
}
