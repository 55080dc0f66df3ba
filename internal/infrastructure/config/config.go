// Package config loads service settings from config.toml and STOCKHOLD_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Lock drivers
const (
	LockDriverLocal = "local"
	LockDriverRedis = "redis"
)

// Late commit policies
const (
	LateCommitRevalidate = "revalidate"
	LateCommitReject     = "reject"
)

const envPrefix = "STOCKHOLD"

// Config is the full service configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	Sweeper     SweeperConfig     `mapstructure:"sweeper"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, stderr, or file path
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// IsProduction reports whether the stricter production checks apply.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig selects the stock ledger backend and sizes its pool.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`      // postgres, sqlite, memory
	SQLitePath      string        `mapstructure:"sqlite_path"` // file path or "file::memory:?cache=shared"
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the driver connection string. Postgres credentials are URL escaped.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

type HTTPConfig struct {
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	MaxBodySize       int64         `mapstructure:"max_body_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods  []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders  []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
}

// ReservationConfig holds hold lifetime, locking and late commit settings.
type ReservationConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`
	LockWait         time.Duration `mapstructure:"lock_wait"`
	LockDriver       string        `mapstructure:"lock_driver"`
	LockLease        time.Duration `mapstructure:"lock_lease"` // must outlive the longest critical section
	LateCommitPolicy string        `mapstructure:"late_commit_policy"`
}

type SweeperConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 0 disables the Redis read-through cache
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	OrderTopic   string        `mapstructure:"order_topic"` // inbound OrderFinalized messages
	GroupID      string        `mapstructure:"group_id"`
	EventTopic   string        `mapstructure:"event_topic"` // empty disables forwarding
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // OTLP gRPC, e.g. "localhost:4317"
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"` // bound variables in spans; never in production
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// defaults also registers every key with viper, which AutomaticEnv needs
// before Unmarshal will consult the environment for it.
var defaults = map[string]any{
	"app.name": "stockhold",
	"app.env":  "development",
	"app.port": "8080",

	"database.driver":             DriverPostgres,
	"database.sqlite_path":        "stockhold.db",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "stockhold",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  time.Hour,
	"database.conn_max_idle_time": 30 * time.Minute,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"http.read_timeout":        15 * time.Second,
	"http.write_timeout":       15 * time.Second,
	"http.idle_timeout":        time.Minute,
	"http.shutdown_timeout":    30 * time.Second,
	"http.max_header_bytes":    1 << 20,
	"http.max_body_size":       int64(1 << 20),
	"http.rate_limit_enabled":  false,
	"http.rate_limit_requests": 100,
	"http.rate_limit_window":   time.Minute,
	"http.cors_allow_origins":  []string{},
	"http.cors_allow_methods":  []string{"GET", "POST", "PUT", "OPTIONS"},
	"http.cors_allow_headers":  []string{"Content-Type", "X-Request-ID"},
	"http.trusted_proxies":     []string{},

	"reservation.ttl":                15 * time.Minute,
	"reservation.lock_wait":          2 * time.Second,
	"reservation.lock_driver":        LockDriverLocal,
	"reservation.lock_lease":         10 * time.Second,
	"reservation.late_commit_policy": LateCommitRevalidate,

	"sweeper.enabled":    false,
	"sweeper.interval":   time.Minute,
	"sweeper.batch_size": 100,

	"catalog.cache_ttl": time.Duration(0),

	"kafka.enabled":       false,
	"kafka.brokers":       []string{"localhost:9092"},
	"kafka.order_topic":   "orders.finalized",
	"kafka.group_id":      "stockhold",
	"kafka.event_topic":   "",
	"kafka.max_retries":   5,
	"kafka.retry_backoff": 500 * time.Millisecond,

	"idempotency.enabled": true,
	"idempotency.ttl":     24 * time.Hour,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "stockhold",
	"telemetry.insecure":                false,
	"telemetry.metrics_enabled":         false,
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
}

// Load reads config.toml from ".", "./config" or "/app" when present, then
// overlays STOCKHOLD_* variables (STOCKHOLD_RESERVATION_TTL=5m sets
// reservation.ttl) on top of the built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	for _, dir := range []string{".", "./config", "/app"} {
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	cfg.Reservation.LateCommitPolicy = strings.ToLower(cfg.Reservation.LateCommitPolicy)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	checks := []func() error{
		c.Database.validate,
		c.Reservation.validate,
		c.checkLocking,
		func() error {
			if c.Sweeper.BatchSize < 0 {
				return errors.New("sweeper.batch_size cannot be negative")
			}
			return nil
		},
		func() error {
			if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
				return errors.New("kafka.brokers is required when kafka is enabled")
			}
			return nil
		},
		func() error {
			if r := c.Telemetry.SamplingRatio; r < 0 || r > 1 {
				return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", r)
			}
			return nil
		},
	}
	if c.App.IsProduction() {
		checks = append(checks, c.checkProduction)
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("database.driver must be one of postgres, sqlite, memory, got %q", d.Driver)
	}
	switch {
	case d.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case d.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case d.MaxIdleConns > d.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			d.MaxIdleConns, d.MaxOpenConns)
	}
	return nil
}

func (r ReservationConfig) validate() error {
	if r.TTL < 0 || r.LockWait < 0 {
		return errors.New("reservation.ttl and reservation.lock_wait cannot be negative")
	}
	if r.LateCommitPolicy != LateCommitRevalidate && r.LateCommitPolicy != LateCommitReject {
		return fmt.Errorf("reservation.late_commit_policy must be revalidate or reject, got %q", r.LateCommitPolicy)
	}
	return nil
}

func (c *Config) checkLocking() error {
	switch c.Reservation.LockDriver {
	case LockDriverLocal:
		return nil
	case LockDriverRedis:
		if !c.Redis.Enabled {
			return errors.New("reservation.lock_driver=redis requires redis.enabled=true")
		}
		if c.Reservation.LockLease <= c.Reservation.LockWait {
			return fmt.Errorf("reservation.lock_lease (%s) must exceed reservation.lock_wait (%s)",
				c.Reservation.LockLease, c.Reservation.LockWait)
		}
		return nil
	default:
		return fmt.Errorf("reservation.lock_driver must be local or redis, got %q", c.Reservation.LockDriver)
	}
}

func (c *Config) checkProduction() error {
	switch c.Database.Driver {
	case DriverMemory:
		return errors.New("database.driver=memory is not durable and cannot be used in production")
	case DriverPostgres:
		if c.Database.Password == "" {
			return errors.New("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return errors.New("database.sslmode cannot be 'disable' in production")
		}
	}
	if slices.Contains(c.HTTP.CORSAllowOrigins, "*") {
		return errors.New("http.cors_allow_origins cannot be '*' in production")
	}
	if c.Telemetry.DBLogFullSQL {
		return errors.New("telemetry.db_log_full_sql must be false in production")
	}
	return nil
}
