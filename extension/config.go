package extension

import "time"

// Store drivers accepted by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Lock drivers accepted by Config.LockDriver.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Config holds the subvault extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.subvault" or "subvault" keys).
type Config struct {
	// DisableRoutes prevents the HTTP listener from starting.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DisableScheduler prevents the periodic batch charge job from running.
	DisableScheduler bool `json:"disable_scheduler" mapstructure:"disable_scheduler" yaml:"disable_scheduler"`

	// BasePath is the URL prefix for subvault routes (default: "/subvault").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// ListenAddr is the address of the extension's own HTTP listener.
	// Routes are only served when it is set.
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr" yaml:"listen_addr"`

	// Driver selects the store backend: memory, postgres, sqlite or mongo
	// (default: memory). Ignored when a store is passed with WithStore.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the connection string for postgres and mongo, or the database
	// file path for sqlite.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the mongo database name (default: "subvault").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// LockDriver selects the per-subscription lock: memory or redis
	// (default: memory). Use redis when several replicas share a store.
	LockDriver string `json:"lock_driver" mapstructure:"lock_driver" yaml:"lock_driver"`

	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db" yaml:"redis_db"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// The store backend is picked from the grove driver (pg or sqlite).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// JWTSecret enables bearer token authorization. Serving the API
	// without it requires AllowInsecure.
	JWTSecret string `json:"-" mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// AllowInsecure lets the HTTP listener start without JWTSecret, in
	// which case every principal is authorized. Development only.
	AllowInsecure bool `json:"allow_insecure" mapstructure:"allow_insecure" yaml:"allow_insecure"`

	// JWTIssuer is required on incoming tokens when set.
	JWTIssuer string `json:"jwt_issuer" mapstructure:"jwt_issuer" yaml:"jwt_issuer"`

	// SchedulerInterval is how often due subscriptions are charged (default: 1m).
	SchedulerInterval time.Duration `json:"scheduler_interval" mapstructure:"scheduler_interval" yaml:"scheduler_interval"`

	// SchedulerPageSize bounds one batch charge call (default: 100).
	SchedulerPageSize int `json:"scheduler_page_size" mapstructure:"scheduler_page_size" yaml:"scheduler_page_size"`

	// LockTTL bounds how long a per-subscription lock is held (default: 30s).
	LockTTL time.Duration `json:"lock_ttl" mapstructure:"lock_ttl" yaml:"lock_ttl"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:          "/subvault",
		Driver:            DriverMemory,
		Database:          "subvault",
		LockDriver:        LockMemory,
		SchedulerInterval: time.Minute,
		SchedulerPageSize: 100,
		LockTTL:           30 * time.Second,
		PluginTimeout:     5 * time.Second,
	}
}
