package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfig = `
[tokens]
db_file = "tokens.db"
token_types = ["GA", "VIP"]

[emails]
sender_name = "Con Registration"
sender_email = "reg@example.com"
subject = "Your {{.Noun}}"

[emails.messages]
GA = "Hello!\n\n{{.Tickets}}"
`

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CONFIG", "CONTOKENS_DATABASE_URL", "SENDGRID_API_KEY"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tokens.DBDriver != DriverSQLite {
		t.Errorf("DBDriver = %q, want %q", cfg.Tokens.DBDriver, DriverSQLite)
	}
	if cfg.Tokens.TokenLength != 64 {
		t.Errorf("TokenLength = %d, want 64", cfg.Tokens.TokenLength)
	}
	if cfg.Tokens.LowWatermark != 20 {
		t.Errorf("LowWatermark = %d, want 20", cfg.Tokens.LowWatermark)
	}
	if cfg.Tokens.BatchSize != 500 {
		t.Errorf("BatchSize = %d, want 500", cfg.Tokens.BatchSize)
	}
	if cfg.Tokens.LockTimeout != 10*time.Second {
		t.Errorf("LockTimeout = %v, want 10s", cfg.Tokens.LockTimeout)
	}
	if cfg.Tokens.LockFile != "tokens.db.lock" {
		t.Errorf("LockFile = %q, want tokens.db.lock", cfg.Tokens.LockFile)
	}
	if cfg.Emails.Transport != TransportSMTP {
		t.Errorf("Transport = %q, want %q", cfg.Emails.Transport, TransportSMTP)
	}
	if cfg.Emails.SMTPHost != "localhost:25" {
		t.Errorf("SMTPHost = %q, want %q", cfg.Emails.SMTPHost, "localhost:25")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if len(cfg.Tokens.TokenTypes) != 2 || cfg.Tokens.TokenTypes[1] != "VIP" {
		t.Errorf("TokenTypes = %v", cfg.Tokens.TokenTypes)
	}
	if cfg.Emails.Messages["GA"] == "" {
		t.Error("expected GA message template")
	}
}

func TestLoadCustom(t *testing.T) {
	clearAllEnv(t)
	body := `
[tokens]
db_driver = "postgres"
database_url = "postgres://localhost/tokens"
token_types = ["GA"]
token_prefix = "CX"
low_watermark = 5
batch_size = 50
lock_timeout = "3s"

[emails]
sender_name = "Con Registration"
sender_email = "reg@example.com"
subject = "Your {{.Noun}}"

[emails.messages]
GA = "{{.Tickets}}"

[events]
nats_url = "nats://localhost:4222"

[archive]
s3_bucket = "exports"
s3_region = "eu-west-1"

[logging]
level = "debug"
`

	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tokens.DBDriver != DriverPostgres {
		t.Errorf("DBDriver = %q", cfg.Tokens.DBDriver)
	}
	if cfg.Tokens.TokenPrefix != "CX" {
		t.Errorf("TokenPrefix = %q", cfg.Tokens.TokenPrefix)
	}
	if cfg.Tokens.LowWatermark != 5 || cfg.Tokens.BatchSize != 50 {
		t.Errorf("LowWatermark/BatchSize = %d/%d", cfg.Tokens.LowWatermark, cfg.Tokens.BatchSize)
	}
	if cfg.Tokens.LockTimeout != 3*time.Second {
		t.Errorf("LockTimeout = %v", cfg.Tokens.LockTimeout)
	}
	if want := filepath.Join(os.TempDir(), "contokens.lock"); cfg.Tokens.LockFile != want {
		t.Errorf("LockFile = %q, want %q", cfg.Tokens.LockFile, want)
	}
	if cfg.Events.NATSURL != "nats://localhost:4222" {
		t.Errorf("NATSURL = %q", cfg.Events.NATSURL)
	}
	if cfg.Archive.S3Bucket != "exports" || cfg.Archive.S3Region != "eu-west-1" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Archive.GitBranch != "main" {
		t.Errorf("GitBranch = %q, want main", cfg.Archive.GitBranch)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadLockFileFollowsDatabase(t *testing.T) {
	clearAllEnv(t)
	body := strings.Replace(minimalConfig, `db_file = "tokens.db"`, `db_file = "/srv/contokens/tokens.db"`, 1)

	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tokens.LockFile != "/srv/contokens/tokens.db.lock" {
		t.Errorf("LockFile = %q, want /srv/contokens/tokens.db.lock", cfg.Tokens.LockFile)
	}

	body = strings.Replace(body, "[emails]", "lock_file = \"/run/ct.lock\"\n\n[emails]", 1)
	cfg, err = Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tokens.LockFile != "/run/ct.lock" {
		t.Errorf("explicit LockFile = %q, want /run/ct.lock", cfg.Tokens.LockFile)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("CONTOKENS_DATABASE_URL", "postgres://env/tokens")
	t.Setenv("SENDGRID_API_KEY", "SG.from-env")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tokens.DatabaseURL != "postgres://env/tokens" {
		t.Errorf("DatabaseURL = %q", cfg.Tokens.DatabaseURL)
	}
	if cfg.Emails.SendGridAPIKey != "SG.from-env" {
		t.Errorf("SendGridAPIKey = %q", cfg.Emails.SendGridAPIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearAllEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadMalformed(t *testing.T) {
	clearAllEnv(t)
	_, err := Load(writeConfig(t, "[tokens\ndb_file ="))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.Tokens.DBFile = "tokens.db"
		c.Tokens.TokenTypes = []string{"GA"}
		c.Emails.SenderName = "Reg"
		c.Emails.SenderEmail = "reg@example.com"
		c.Emails.Subject = "Your {{.Noun}}"
		c.Emails.Messages = map[string]string{"GA": "{{.Tickets}}"}
		return c
	}

	for _, tc := range []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"Valid", func(c *Config) {}, false},
		{"MissingDBFile", func(c *Config) { c.Tokens.DBFile = "" }, true},
		{"PostgresWithoutURL", func(c *Config) { c.Tokens.DBDriver = DriverPostgres }, true},
		{"PostgresWithURL", func(c *Config) {
			c.Tokens.DBDriver = "Postgres"
			c.Tokens.DatabaseURL = "postgres://localhost/tokens"
		}, false},
		{"UnknownDriver", func(c *Config) { c.Tokens.DBDriver = "oracle" }, true},
		{"NoTypes", func(c *Config) { c.Tokens.TokenTypes = nil }, true},
		{"ZeroLength", func(c *Config) { c.Tokens.TokenLength = 0 }, true},
		{"PrefixTooLong", func(c *Config) { c.Tokens.TokenPrefix = strings.Repeat("P", 62) }, true},
		{"PrefixTooLongForDigest", func(c *Config) {
			c.Tokens.TokenLength = 100
			c.Tokens.TokenPrefix = strings.Repeat("P", 70)
		}, true},
		{"LongPrefixShortImports", func(c *Config) {
			c.Tokens.TokenLength = 8
			c.Tokens.TokenPrefix = "ABCDEF"
		}, false},
		{"NegativeWatermark", func(c *Config) { c.Tokens.LowWatermark = -1 }, true},
		{"ZeroBatch", func(c *Config) { c.Tokens.BatchSize = 0 }, true},
		{"ZeroLockTimeout", func(c *Config) { c.Tokens.LockTimeout = 0 }, true},
		{"MissingSender", func(c *Config) { c.Emails.SenderEmail = "" }, true},
		{"MissingSubject", func(c *Config) { c.Emails.Subject = "" }, true},
		{"MissingMessages", func(c *Config) { c.Emails.Messages = nil }, true},
		{"SendGridWithoutKey", func(c *Config) { c.Emails.Transport = TransportSendGrid }, true},
		{"SendGridWithKey", func(c *Config) {
			c.Emails.Transport = TransportSendGrid
			c.Emails.SendGridAPIKey = "SG.key"
		}, false},
		{"UnknownTransport", func(c *Config) { c.Emails.Transport = "pigeon" }, true},
		{"BadLogRotation", func(c *Config) { c.Logging.MaxFiles = 0 }, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPath(t *testing.T) {
	clearAllEnv(t)
	if got := Path(""); got != "config.toml" {
		t.Errorf("Path(\"\") = %q, want config.toml", got)
	}
	t.Setenv("CONFIG", "/etc/contokens.toml")
	if got := Path(""); got != "/etc/contokens.toml" {
		t.Errorf("Path(\"\") with $CONFIG = %q", got)
	}
	if got := Path("flag.toml"); got != "flag.toml" {
		t.Errorf("Path(flag) = %q, want flag.toml", got)
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
