package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/xraph/subvault/extension"
)

// Environment variables read by every command.
const (
	envDriver            = "SUBVAULT_DRIVER"
	envDSN               = "SUBVAULT_DSN"
	envDatabase          = "SUBVAULT_DATABASE"
	envLockDriver        = "SUBVAULT_LOCK_DRIVER"
	envRedisAddr         = "SUBVAULT_REDIS_ADDR"
	envRedisPassword     = "SUBVAULT_REDIS_PASSWORD"
	envRedisDB           = "SUBVAULT_REDIS_DB"
	envJWTSecret         = "SUBVAULT_JWT_SECRET"
	envJWTIssuer         = "SUBVAULT_JWT_ISSUER"
	envAllowInsecure     = "SUBVAULT_ALLOW_INSECURE"
	envListenAddr        = "SUBVAULT_LISTEN_ADDR"
	envMetricsAddr       = "SUBVAULT_METRICS_ADDR"
	envBasePath          = "SUBVAULT_BASE_PATH"
	envSchedulerInterval = "SUBVAULT_SCHEDULER_INTERVAL"
	envSchedulerPageSize = "SUBVAULT_SCHEDULER_PAGE_SIZE"
	envDisableScheduler  = "SUBVAULT_DISABLE_SCHEDULER"
	envLockTTL           = "SUBVAULT_LOCK_TTL"
	envLogLevel          = "SUBVAULT_LOG_LEVEL"
)

const (
	defaultListenAddr  = ":8080"
	defaultMetricsAddr = ":9091"
)

// Config is the standalone server configuration.
type Config struct {
	extension.Config

	MetricsAddr string
	LogLevel    slog.Level
}

// loadEnvFile loads path into the process environment. A missing file is
// not an error; variables already set are kept.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// loadConfig builds a Config from lookup, normally os.Getenv.
func loadConfig(lookup func(string) string) (Config, error) {
	defaults := extension.DefaultConfig()
	cfg := Config{
		Config:      defaults,
		MetricsAddr: defaultMetricsAddr,
		LogLevel:    slog.LevelInfo,
	}
	cfg.ListenAddr = defaultListenAddr

	setString(&cfg.Driver, lookup(envDriver))
	setString(&cfg.DSN, lookup(envDSN))
	setString(&cfg.Database, lookup(envDatabase))
	setString(&cfg.LockDriver, lookup(envLockDriver))
	setString(&cfg.RedisAddr, lookup(envRedisAddr))
	setString(&cfg.RedisPassword, lookup(envRedisPassword))
	setString(&cfg.JWTSecret, lookup(envJWTSecret))
	setString(&cfg.JWTIssuer, lookup(envJWTIssuer))
	setString(&cfg.ListenAddr, lookup(envListenAddr))
	setString(&cfg.MetricsAddr, lookup(envMetricsAddr))
	setString(&cfg.BasePath, lookup(envBasePath))

	var err error
	if cfg.RedisDB, err = intVar(lookup, envRedisDB, cfg.RedisDB); err != nil {
		return Config{}, err
	}
	if cfg.SchedulerPageSize, err = intVar(lookup, envSchedulerPageSize, cfg.SchedulerPageSize); err != nil {
		return Config{}, err
	}
	if cfg.SchedulerInterval, err = durationVar(lookup, envSchedulerInterval, cfg.SchedulerInterval); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = durationVar(lookup, envLockTTL, cfg.LockTTL); err != nil {
		return Config{}, err
	}
	if cfg.DisableScheduler, err = boolVar(lookup, envDisableScheduler, cfg.DisableScheduler); err != nil {
		return Config{}, err
	}
	if cfg.AllowInsecure, err = boolVar(lookup, envAllowInsecure, cfg.AllowInsecure); err != nil {
		return Config{}, err
	}
	if v := lookup(envLogLevel); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return Config{}, fmt.Errorf("%s: %w", envLogLevel, err)
		}
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func intVar(lookup func(string) string, key string, fallback int) (int, error) {
	v := lookup(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolVar(lookup func(string) string, key string, fallback bool) (bool, error) {
	v := lookup(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func durationVar(lookup func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := lookup(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
