package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config contains application configuration
type Config struct {
	RunAddress          string
	DatabaseDriver      string
	DatabaseURI         string
	OrdersSystemAddress string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	BalanceCacheTTL     time.Duration
	JWTSecret           string
	LogMode             string
	ReconcileInterval   time.Duration
	SeedQuests          bool
	ShutdownTimeout     time.Duration
}

// env var names, keyed by viper key
var envBindings = map[string]string{
	"run_address":           "RUN_ADDRESS",
	"database.driver":       "DATABASE_DRIVER",
	"database.uri":          "DATABASE_URI",
	"orders_system_address": "ORDERS_SYSTEM_ADDRESS",
	"redis.addr":            "REDIS_ADDR",
	"redis.password":        "REDIS_PASSWORD",
	"redis.db":              "REDIS_DB",
	"redis.balance_ttl":     "BALANCE_CACHE_TTL",
	"jwt_secret":            "JWT_SECRET",
	"log_mode":              "LOG_MODE",
	"reconcile_interval":    "RECONCILE_INTERVAL",
	"seed_quests":           "SEED_QUESTS",
	"shutdown_timeout":      "SHUTDOWN_TIMEOUT",
}

// NewConfig creates a new configuration from flags, environment variables
// and an optional config.yaml in the working directory
func NewConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	return cfg
}

// Load parses args and the environment. Precedence: flag, env, file, default.
func Load(args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("run_address", ":8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.uri", "")
	v.SetDefault("orders_system_address", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.balance_ttl", 5*time.Minute)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("log_mode", "dev")
	v.SetDefault("reconcile_interval", time.Duration(0))
	v.SetDefault("seed_quests", true)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	fs := pflag.NewFlagSet("coinledger", pflag.ContinueOnError)
	fs.StringP("address", "a", "", "Server run address")
	fs.StringP("database", "d", "", "Database URI")
	fs.String("db-driver", "", "Database driver: postgres or sqlite")
	fs.StringP("orders", "r", "", "Order system address")
	fs.String("redis-addr", "", "Redis address for the balance cache (empty disables)")
	fs.String("jwt-secret", "", "Identity provider token signing secret")
	fs.String("log-mode", "", "Log mode: dev or prod")
	fs.Duration("reconcile-interval", 0, "Ledger reconciliation interval (0 disables)")
	fs.Bool("seed-quests", true, "Insert missing catalog quests at startup")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	flagKeys := map[string]string{
		"address":            "run_address",
		"database":           "database.uri",
		"db-driver":          "database.driver",
		"orders":             "orders_system_address",
		"redis-addr":         "redis.addr",
		"jwt-secret":         "jwt_secret",
		"log-mode":           "log_mode",
		"reconcile-interval": "reconcile_interval",
		"seed-quests":        "seed_quests",
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, err
		}
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		RunAddress:          v.GetString("run_address"),
		DatabaseDriver:      v.GetString("database.driver"),
		DatabaseURI:         v.GetString("database.uri"),
		OrdersSystemAddress: v.GetString("orders_system_address"),
		RedisAddr:           v.GetString("redis.addr"),
		RedisPassword:       v.GetString("redis.password"),
		RedisDB:             v.GetInt("redis.db"),
		BalanceCacheTTL:     v.GetDuration("redis.balance_ttl"),
		JWTSecret:           v.GetString("jwt_secret"),
		LogMode:             v.GetString("log_mode"),
		ReconcileInterval:   v.GetDuration("reconcile_interval"),
		SeedQuests:          v.GetBool("seed_quests"),
		ShutdownTimeout:     v.GetDuration("shutdown_timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings the server cannot start without
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseURI == "" {
		return errors.New("database URI is required")
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required")
	}
	return nil
}
