package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CAMPUSPAY_SERVER_ADDRESS.
const EnvPrefix = "CAMPUSPAY"

// Remote backend kinds.
const (
	RemoteNone     = "none"
	RemoteRedis    = "redis"
	RemotePostgres = "postgres"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Demo     DemoConfig     `mapstructure:"demo"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Dev    bool   `mapstructure:"dev"`
}

// StoreConfig selects the remote backend and how it is guarded.
type StoreConfig struct {
	// Remote is one of none, redis or postgres
	Remote string `mapstructure:"remote"`

	// Timeout bounds each remote call
	Timeout time.Duration `mapstructure:"timeout"`

	// BreakerFailures is the consecutive failure count that opens the breaker
	BreakerFailures uint32 `mapstructure:"breaker_failures"`

	// BreakerTimeout is how long the breaker stays open
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`

	// MirrorQueue is the local mirror writer queue size
	MirrorQueue int `mapstructure:"mirror_queue"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ScanConfig drives the simulated card reader and session timers.
type ScanConfig struct {
	Step        int           `mapstructure:"step"`
	Interval    time.Duration `mapstructure:"interval"`
	Unavailable bool          `mapstructure:"unavailable"`
	DetectDelay time.Duration `mapstructure:"detect_delay"`
	ResetAfter  time.Duration `mapstructure:"reset_after"`
}

type PaymentConfig struct {
	// MinCredentialLength is the shortest accepted confirmation secret
	MinCredentialLength int           `mapstructure:"min_credential_length"`
	LedgerAttempts      int           `mapstructure:"ledger_attempts"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff"`
}

type DemoConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Balance  string `mapstructure:"balance"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.dev", false)

	v.SetDefault("store.remote", RemoteNone)
	v.SetDefault("store.timeout", 2*time.Second)
	v.SetDefault("store.breaker_failures", 5)
	v.SetDefault("store.breaker_timeout", 10*time.Second)
	v.SetDefault("store.mirror_queue", 256)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "campuspay:")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.database", "campuspay")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("scan.step", 5)
	v.SetDefault("scan.interval", 100*time.Millisecond)
	v.SetDefault("scan.unavailable", false)
	v.SetDefault("scan.detect_delay", time.Second)
	v.SetDefault("scan.reset_after", 2*time.Second)

	v.SetDefault("payment.min_credential_length", 4)
	v.SetDefault("payment.ledger_attempts", 3)
	v.SetDefault("payment.retry_backoff", 100*time.Millisecond)

	v.SetDefault("demo.enabled", true)
	v.SetDefault("demo.email", "demo@paywise.edu")
	v.SetDefault("demo.password", "demo")
	v.SetDefault("demo.name", "Demo User")
	v.SetDefault("demo.balance", "5000")
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, err := decode(newViper())
	if err != nil {
		// Defaults are static; failing to decode them is a programming error.
		panic(err)
	}
	return cfg
}

// Load reads .env (when present), then path (when non-empty), then
// CAMPUSPAY_* environment variables, each overriding the previous layer.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Store.Remote = strings.ToLower(strings.TrimSpace(cfg.Store.Remote))
	return cfg, nil
}

// Validate rejects settings the application cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Remote {
	case RemoteNone, RemoteRedis, RemotePostgres:
	default:
		errs = append(errs, fmt.Errorf("store.remote must be none, redis or postgres, got %q", c.Store.Remote))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}
	if c.Store.BreakerFailures == 0 {
		errs = append(errs, errors.New("store.breaker_failures must be at least 1"))
	}
	if c.Store.MirrorQueue <= 0 {
		errs = append(errs, errors.New("store.mirror_queue must be positive"))
	}
	if c.Scan.Step <= 0 || c.Scan.Step > 100 {
		errs = append(errs, fmt.Errorf("scan.step must be in 1..100, got %d", c.Scan.Step))
	}
	if c.Scan.Interval <= 0 {
		errs = append(errs, errors.New("scan.interval must be positive"))
	}
	if c.Scan.DetectDelay < 0 {
		errs = append(errs, errors.New("scan.detect_delay must not be negative"))
	}
	if c.Payment.MinCredentialLength < 1 {
		errs = append(errs, errors.New("payment.min_credential_length must be at least 1"))
	}
	if c.Payment.LedgerAttempts <= 0 {
		errs = append(errs, errors.New("payment.ledger_attempts must be at least 1"))
	}
	if c.Demo.Enabled {
		if c.Demo.Email == "" || c.Demo.Password == "" {
			errs = append(errs, errors.New("demo.email and demo.password are required when demo is enabled"))
		}
		if _, err := c.DemoBalance(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// DemoBalance parses the seeded demo balance.
func (c Config) DemoBalance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Demo.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("demo.balance: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("demo.balance must not be negative, got %s", d)
	}
	return d, nil
}
