package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/auth"
	"github.com/xraph/subvault/lock"
	"github.com/xraph/subvault/store"
	"github.com/xraph/subvault/store/memory"
	"github.com/xraph/subvault/store/mongo"
	"github.com/xraph/subvault/store/postgres"
	"github.com/xraph/subvault/store/sqlite"
)

// schedulerTokenTTL is the lifetime of the admin token the scheduler signs
// for each run.
const schedulerTokenTTL = time.Minute

// OpenStore opens the backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.Driver == "" || cfg.Driver == DriverMemory {
		return memory.New(), nil
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("subvault: driver %q requires a dsn", cfg.Driver)
	}

	switch cfg.Driver {
	case DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMongo:
		name := cfg.Database
		if name == "" {
			name = DefaultConfig().Database
		}
		s, err := mongo.Connect(cfg.DSN, name)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("subvault: unknown store driver %q", cfg.Driver)
	}
}

// NewLocker returns the locker named by cfg.LockDriver.
func NewLocker(cfg Config) (lock.Locker, error) {
	switch cfg.LockDriver {
	case "", LockMemory:
		return lock.NewMemory(), nil
	case LockRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("subvault: lock driver %q requires redis_addr", cfg.LockDriver)
		}
		return lock.DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("subvault: unknown lock driver %q", cfg.LockDriver)
	}
}

// ErrInsecureServe is returned when the API would be served without a JWT
// secret and AllowInsecure is not set.
var ErrInsecureServe = errors.New("subvault: serving the API requires jwt_secret; set allow_insecure to run without authentication")

// RequireServeAuth fails closed: the API is only served with a JWT secret
// or an explicit AllowInsecure.
func RequireServeAuth(cfg Config) error {
	if cfg.JWTSecret == "" && !cfg.AllowInsecure {
		return ErrInsecureServe
	}
	return nil
}

// StoreFromGrove wraps an open grove database in the backend matching its
// driver.
func StoreFromGrove(db *grove.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.New("subvault: nil grove database")
	}
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	default:
		return nil, fmt.Errorf("subvault: unsupported grove driver %q", name)
	}
}

// NewAuthorizer returns a JWT authorizer when cfg.JWTSecret is set and an
// allow-all authorizer otherwise. Callers serving HTTP check
// RequireServeAuth first.
func NewAuthorizer(cfg Config) auth.Authorizer {
	if cfg.JWTSecret == "" {
		return auth.AllowAll()
	}
	var opts []auth.JWTOption
	if cfg.JWTIssuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
	}
	return auth.NewJWTAuthorizer([]byte(cfg.JWTSecret), opts...)
}

// AdminCaller returns a scheduler caller that acts as the configured admin.
// With a JWT authorizer it signs a short-lived token for the admin read from
// settings; any other authorizer gets the context unchanged.
func AdminCaller(v *subvault.Vault, a auth.Authorizer, logger *slog.Logger) func(context.Context) context.Context {
	jwtAuth, ok := a.(*auth.JWTAuthorizer)
	if !ok {
		return func(ctx context.Context) context.Context { return ctx }
	}
	return func(ctx context.Context) context.Context {
		st, err := v.GetSettings(ctx)
		if err != nil {
			logger.Debug("scheduler caller: settings unavailable", "error", err)
			return ctx
		}
		tok, err := jwtAuth.Sign(st.Admin, schedulerTokenTTL)
		if err != nil {
			logger.Warn("scheduler caller: sign admin token", "error", err)
			return ctx
		}
		return auth.WithToken(ctx, tok)
	}
}
