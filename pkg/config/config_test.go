package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"DATA_DIR", "BATCH_SIZE", "TRACK_COERCIONS", "PG_MIRROR_ENABLED", "LOG_FORMAT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DataDir != "." || cfg.BatchSize != 10000 || cfg.TrackCoercions || cfg.MirrorEnabled {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Postgres != nil {
		t.Error("postgres config should only load with the mirror enabled")
	}
	if cfg.SQLite.BusyTimeout != 5*time.Second {
		t.Errorf("busy timeout = %v", cfg.SQLite.BusyTimeout)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/planilhas")
	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("TRACK_COERCIONS", "true")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DataDir != "/srv/planilhas" || cfg.BatchSize != 500 || !cfg.TrackCoercions {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestMirrorRequiresPostgres(t *testing.T) {
	t.Setenv("PG_MIRROR_ENABLED", "true")
	t.Setenv("POSTGRES_USER", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error when the mirror is enabled without credentials")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{SQLite: DefaultSQLiteConfig(), DataDir: ".", BatchSize: 10, LogFormat: "console", LogLevel: "info"}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero batch", func(c *Config) { c.BatchSize = 0 }},
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"mirror without postgres", func(c *Config) { c.MirrorEnabled = true }},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := DefaultSQLiteConfig().DSN("/tmp/DBV Capital_FeeBased.db")
	if !strings.HasPrefix(dsn, "/tmp/DBV Capital_FeeBased.db?") {
		t.Errorf("dsn = %s", dsn)
	}
	for _, want := range []string{"_busy_timeout=5000", "_journal_mode=DELETE", "_synchronous=NORMAL"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %s missing %s", dsn, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "debug", LogFormat: "json"}
	logger, err := cfg.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Sync()

	cfg.LogLevel = "loud"
	if _, err := cfg.NewLogger(); err == nil {
		t.Error("expected error for unknown level")
	}
}
