// Package config reads process settings from FLOWCHAT_* environment
// variables, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/logging"
	"github.com/aretw0/flowchat/pkg/adapters/sqlstore"
	"github.com/aretw0/flowchat/pkg/persistence/middleware"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "FLOWCHAT_"

// Config holds the settings shared by the serve, mcp and run commands.
// Empty connection settings disable the matching backend.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	FlowsDir  string `env:"FLOWS_DIR" envDefault:"flows"`

	AutoStart      bool          `env:"AUTO_START" envDefault:"true"`
	RestartPolicy  string        `env:"RESTART_POLICY" envDefault:"keep_lead"`
	LeadTimeout    time.Duration `env:"LEAD_TIMEOUT" envDefault:"5s"`
	MaxInputSize   int           `env:"MAX_INPUT_SIZE" envDefault:"4096"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	Tracing        bool          `env:"TRACING"`

	// OTLPEndpoint sends spans to a collector instead of the log.
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	Redis    Redis    `envPrefix:"REDIS_"`
	Snapshot Snapshot `envPrefix:"SNAPSHOT_"`
	Database Database `envPrefix:"DB_"`
	AMQP     AMQP     `envPrefix:"AMQP_"`
	Media    Media    `envPrefix:"MINIO_"`
}

// Snapshot configures how session snapshots are protected at rest.
// Keys are base64 encoded 32 byte AES keys.
type Snapshot struct {
	Key          string   `env:"KEY"`
	FallbackKeys []string `env:"FALLBACK_KEYS" envSeparator:","`
	// Mask lists regular expressions matched against variable names.
	Mask []string `env:"MASK" envSeparator:","`
}

// Redis configures session snapshots and distributed locks.
type Redis struct {
	Addr       string        `env:"ADDR"`
	Password   string        `env:"PASSWORD"`
	DB         int           `env:"DB" envDefault:"0"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`
}

// Database configures the lead store.
type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN"`
}

// AMQP configures lead event publishing.
type AMQP struct {
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"flowchat.leads"`
}

// Media configures presigned media URLs.
type Media struct {
	Endpoint  string        `env:"ENDPOINT"`
	AccessKey string        `env:"ACCESS_KEY"`
	SecretKey string        `env:"SECRET_KEY"`
	Bucket    string        `env:"BUCKET"`
	Region    string        `env:"REGION"`
	UseSSL    bool          `env:"USE_SSL" envDefault:"true"`
	Expiry    time.Duration `env:"URL_EXPIRY" envDefault:"15m"`
}

// Load reads the given .env files, when present, then parses the environment.
// Variables already set in the environment win over file values.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that are parsed again later.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if _, err := flowchat.ParseRestartPolicy(c.RestartPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Database.DSN != "" {
		if _, err := sqlstore.ParseDialect(c.Database.Driver); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Snapshot.Key != "" {
		if _, err := middleware.ParseKey(c.Snapshot.Key); err != nil {
			errs = append(errs, err)
		}
	} else if len(c.Snapshot.FallbackKeys) > 0 {
		errs = append(errs, errors.New("snapshot fallback keys need an active key"))
	}
	for _, k := range c.Snapshot.FallbackKeys {
		if _, err := middleware.ParseKey(k); err != nil {
			errs = append(errs, fmt.Errorf("fallback %w", err))
		}
	}
	if c.Media.Endpoint != "" && c.Media.Bucket == "" {
		errs = append(errs, errors.New("media bucket is required when an endpoint is set"))
	}
	if c.MaxInputSize <= 0 {
		errs = append(errs, fmt.Errorf("max input size must be positive, got %d", c.MaxInputSize))
	}
	if c.LeadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lead timeout must be positive, got %s", c.LeadTimeout))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// Restart returns the parsed restart policy.
func (c *Config) Restart() flowchat.RestartPolicy {
	p, _ := flowchat.ParseRestartPolicy(c.RestartPolicy)
	return p
}

// Dialect returns the parsed lead store dialect.
func (c *Config) Dialect() sqlstore.Dialect {
	d, _ := sqlstore.ParseDialect(c.Database.Driver)
	return d
}
