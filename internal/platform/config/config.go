package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"contactlink/pkg/platform/orderedset"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Lock backends. The database backend uses whatever the store driver offers:
// sharded mutexes in memory, advisory locks in postgres, one writer in sqlite.
const (
	LockBackendDatabase = "database"
	LockBackendRedis    = "redis"
)

// Server captures process level configuration.
type Server struct {
	Addr            string        `env:"CONTACTLINK_ADDR" envDefault:":8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Kafka    KafkaConfig    `envPrefix:"IDENTITY_EVENTS_"`
	Identity IdentityConfig `envPrefix:"IDENTITY_"`
	CORS     CORSConfig     `envPrefix:"CORS_"`
	Tracing  TracingConfig  `envPrefix:"OTEL_"`
}

// HTTPConfig bounds how long the server waits on slow clients.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig selects and locates the contact store.
type DatabaseConfig struct {
	Driver          string        `env:"DRIVER" envDefault:"memory"`
	URL             string        `env:"URL"`
	SQLitePath      string        `env:"SQLITE_PATH" envDefault:"data/contactlink.db"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig configures the optional redis client. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the audit event sink. Brokers take precedence over
// Persist; with neither, events are written to the log.
type KafkaConfig struct {
	Brokers           []string `env:"BROKERS"`
	Topic             string   `env:"TOPIC" envDefault:"contactlink.identity-events"`
	Partitions        int32    `env:"PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"REPLICATION_FACTOR" envDefault:"1"`
	BufferSize        int      `env:"BUFFER_SIZE" envDefault:"1024"`
	// Persist stores events in the contact_events table of the postgres store.
	Persist bool `env:"PERSIST" envDefault:"false"`
}

// Enabled reports whether a broker list is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// IdentityConfig tunes consolidation.
type IdentityConfig struct {
	MatchStrategy     string        `env:"MATCH_STRATEGY" envDefault:"direct"`
	StrictConsistency bool          `env:"STRICT_CONSISTENCY" envDefault:"false"`
	LockBackend       string        `env:"LOCK_BACKEND" envDefault:"database"`
	LockTTL           time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	TxTimeout         time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
	MaxAge         int      `env:"MAX_AGE" envDefault:"300"`
}

// TracingConfig enables OTLP trace export when Endpoint is set.
type TracingConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"true"`
	Endpoint    string `env:"ENDPOINT"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"contactlink"`
}

// Active reports whether traces should be exported.
func (t TracingConfig) Active() bool {
	return t.Enabled && t.Endpoint != ""
}

// IsProduction reports whether the process runs with production defaults.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Load reads an optional .env file and parses the environment into Server.
func Load() (Server, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return Parse()
}

// Parse parses the current environment into Server and validates it.
func Parse() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = cleanList(cfg.Kafka.Brokers)
	cfg.CORS.AllowedOrigins = cleanList(cfg.CORS.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks the enum-like fields and the settings they require.
func (s Server) Validate() error {
	var errs []error
	switch s.Database.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if s.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", s.Database.Driver))
	}

	switch s.Identity.MatchStrategy {
	case "direct", "closure":
	default:
		errs = append(errs, fmt.Errorf("unknown IDENTITY_MATCH_STRATEGY %q", s.Identity.MatchStrategy))
	}

	switch s.Identity.LockBackend {
	case LockBackendDatabase:
	case LockBackendRedis:
		if s.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis lock backend"))
		}
		if s.Identity.LockTTL <= 0 {
			errs = append(errs, errors.New("IDENTITY_LOCK_TTL must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IDENTITY_LOCK_BACKEND %q", s.Identity.LockBackend))
	}

	if s.Identity.TxTimeout <= 0 {
		errs = append(errs, errors.New("IDENTITY_TX_TIMEOUT must be positive"))
	}
	if s.Kafka.Enabled() && s.Kafka.Topic == "" {
		errs = append(errs, errors.New("IDENTITY_EVENTS_TOPIC is required when brokers are set"))
	}
	if s.Kafka.Persist && s.Database.Driver != DriverPostgres {
		errs = append(errs, errors.New("IDENTITY_EVENTS_PERSIST requires the postgres driver"))
	}
	return errors.Join(errs...)
}

// cleanList trims comma-separated entries and drops blanks and repeats.
func cleanList(values []string) []string {
	set := orderedset.Of[string]()
	for _, v := range values {
		v = strings.TrimSpace(v)
		orderedset.AddNonEmpty(set, &v)
	}
	if set.Len() == 0 {
		return nil
	}
	return set.Values()
}
