// Package config loads the TOML configuration shared by every command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	TransportSMTP     = "smtp"
	TransportSendGrid = "sendgrid"

	defaultConfigFile   = "config.toml"
	defaultTokenLength  = 64
	defaultLowWatermark = 20
	defaultBatchSize    = 500
	defaultLockName     = "contokens.lock"
	defaultLockTimeout  = 10 * time.Second
	defaultSMTPHost     = "localhost:25"
	defaultLogLevel     = "info"
	defaultLogMaxSizeMB = 10
	defaultLogMaxFiles  = 5
	defaultS3Region     = "us-east-1"
	defaultGitBranch    = "main"

	// generatedTokenLength is the length of a hex SHA-256 digest.
	generatedTokenLength = 64
)

// ErrInvalidConfig is returned when a required key is missing or malformed.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Tokens  TokensConfig  `toml:"tokens"`
	Emails  EmailsConfig  `toml:"emails"`
	Events  EventsConfig  `toml:"events"`
	Archive ArchiveConfig `toml:"archive"`
	Logging LoggingConfig `toml:"logging"`
}

type TokensConfig struct {
	DBDriver     string        `toml:"db_driver"`    // "sqlite" (default) or "postgres"
	DBFile       string        `toml:"db_file"`      // sqlite database path
	DatabaseURL  string        `toml:"database_url"` // postgres URL; CONTOKENS_DATABASE_URL overrides
	TokenTypes   []string      `toml:"token_types"`
	TokenPrefix  string        `toml:"token_prefix"`
	TokenLength  int           `toml:"token_length"`
	LowWatermark int           `toml:"low_watermark"`
	BatchSize    int           `toml:"batch_size"`
	LockFile     string        `toml:"lock_file"`    // default: db_file + ".lock", or contokens.lock in the temp dir for postgres
	LockTimeout  time.Duration `toml:"lock_timeout"`
}

type EmailsConfig struct {
	SenderName     string            `toml:"sender_name"`
	SenderEmail    string            `toml:"sender_email"`
	Subject        string            `toml:"subject"`
	Transport      string            `toml:"transport"` // "smtp" (default) or "sendgrid"
	SMTPHost       string            `toml:"smtp_host"`
	SendGridAPIKey string            `toml:"sendgrid_api_key"` // SENDGRID_API_KEY overrides
	Messages       map[string]string `toml:"messages"`
}

type EventsConfig struct {
	NATSURL string `toml:"nats_url"` // empty = no events
}

type ArchiveConfig struct {
	S3Bucket   string `toml:"s3_bucket"` // enables S3 when set
	S3Prefix   string `toml:"s3_prefix"`
	S3Region   string `toml:"s3_region"`
	S3Endpoint string `toml:"s3_endpoint"` // custom endpoint for MinIO
	GitRepo    string `toml:"git_repo"`    // enables git when set; path to clone
	GitBranch  string `toml:"git_branch"`
}

type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// DefaultConfig returns a Config with every optional key at its default.
func DefaultConfig() Config {
	return Config{
		Tokens: TokensConfig{
			DBDriver:     DriverSQLite,
			TokenLength:  defaultTokenLength,
			LowWatermark: defaultLowWatermark,
			BatchSize:    defaultBatchSize,
			LockTimeout:  defaultLockTimeout,
		},
		Emails: EmailsConfig{
			Transport: TransportSMTP,
			SMTPHost:  defaultSMTPHost,
		},
		Archive: ArchiveConfig{
			S3Region:  defaultS3Region,
			GitBranch: defaultGitBranch,
		},
		Logging: LoggingConfig{
			Level:     defaultLogLevel,
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Path returns the configuration file to load: the explicit flag value if
// set, then $CONFIG, then config.toml in the working directory.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	return envOrDefault("CONFIG", defaultConfigFile)
}

// Load decodes the TOML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: config file %s not found", ErrInvalidConfig, path)
		}
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidConfig, path, err)
	}

	cfg.Tokens.DatabaseURL = envOrDefault("CONTOKENS_DATABASE_URL", cfg.Tokens.DatabaseURL)
	cfg.Emails.SendGridAPIKey = envOrDefault("SENDGRID_API_KEY", cfg.Emails.SendGridAPIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first missing or malformed key.
func (c *Config) Validate() error {
	t := &c.Tokens
	t.DBDriver = strings.ToLower(t.DBDriver)
	switch t.DBDriver {
	case DriverSQLite:
		if t.DBFile == "" {
			return invalid("tokens.db_file not found in config")
		}
		if t.LockFile == "" {
			t.LockFile = t.DBFile + ".lock"
		}
	case DriverPostgres:
		if t.DatabaseURL == "" {
			return invalid("tokens.database_url not found in config")
		}
		if t.LockFile == "" {
			t.LockFile = filepath.Join(os.TempDir(), defaultLockName)
		}
	default:
		return invalid("tokens.db_driver %q must be %q or %q", t.DBDriver, DriverSQLite, DriverPostgres)
	}
	if len(t.TokenTypes) == 0 {
		return invalid("tokens.token_types not found in config or empty")
	}
	if t.TokenLength <= 0 {
		return invalid("tokens.token_length must be positive")
	}
	// Generated tokens carry the prefix, the type initial and a dash.
	if t.TokenPrefix != "" && len(t.TokenPrefix)+2 >= generatedTokenLength {
		return invalid("tokens.token_prefix %q is too long for %d character tokens", t.TokenPrefix, generatedTokenLength)
	}
	if t.LowWatermark < 0 {
		return invalid("tokens.low_watermark must not be negative")
	}
	if t.BatchSize <= 0 {
		return invalid("tokens.batch_size must be positive")
	}
	if t.LockTimeout <= 0 {
		return invalid("tokens.lock_timeout must be positive")
	}

	e := &c.Emails
	for _, kv := range [][2]string{
		{"sender_name", e.SenderName},
		{"sender_email", e.SenderEmail},
		{"subject", e.Subject},
	} {
		if kv[1] == "" {
			return invalid("emails.%s not found in config", kv[0])
		}
	}
	if e.Messages == nil {
		return invalid("emails.messages not found in config")
	}
	e.Transport = strings.ToLower(e.Transport)
	switch e.Transport {
	case TransportSMTP:
	case TransportSendGrid:
		if e.SendGridAPIKey == "" {
			return invalid("emails.sendgrid_api_key is required for the sendgrid transport")
		}
	default:
		return invalid("emails.transport %q must be %q or %q", e.Transport, TransportSMTP, TransportSendGrid)
	}

	if c.Logging.MaxSizeMB <= 0 || c.Logging.MaxFiles <= 0 {
		return invalid("logging.max_size_mb and logging.max_files must be positive")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
