package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Addr != ":8080" || c.StoreDriver != DriverBolt || c.MaxBytes != 1_048_576 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.RevealReason || c.TestMode || c.JanitorInterval != 0 || c.CacheSize != 0 {
		t.Fatalf("optional features should default off: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PASTEBIN_ADDR", ":9090")
	t.Setenv("PASTEBIN_STORE", "Redis")
	t.Setenv("PASTEBIN_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PASTEBIN_MAX_BYTES", "2048")
	t.Setenv("PASTEBIN_REVEAL_REASON", "true")
	t.Setenv("PASTEBIN_CACHE_SIZE", "500")
	t.Setenv("PASTEBIN_JANITOR_INTERVAL", "2m")
	t.Setenv("PASTEBIN_ARGON2_THREADS", "4")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Addr != ":9090" || c.StoreDriver != DriverRedis || c.MaxBytes != 2048 {
		t.Fatalf("unexpected config %+v", c)
	}
	if !c.RevealReason || c.CacheSize != 500 || c.JanitorInterval != 2*time.Minute {
		t.Fatalf("unexpected config %+v", c)
	}
	if c.Argon2.Threads != 4 {
		t.Fatalf("threads %d", c.Argon2.Threads)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLegacyTestModeSwitch(t *testing.T) {
	t.Setenv("TEST_MODE", "1")
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.TestMode {
		t.Fatalf("expected TEST_MODE=1 to enable test mode")
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"PASTEBIN_MAX_BYTES":        "lots",
		"PASTEBIN_REVEAL_REASON":    "maybe",
		"PASTEBIN_JANITOR_INTERVAL": "often",
		"PASTEBIN_ARGON2_THREADS":   "300",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, val)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return c
	}
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, "unknown store driver"},
		{"redis without url", func(c *Config) { c.StoreDriver = DriverRedis }, "redis"},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = DriverPostgres }, "dsn"},
		{"bolt without path", func(c *Config) { c.DataPath = "" }, "data path"},
		{"relative base url", func(c *Config) { c.BaseURL = "example.com" }, "scheme and host"},
		{"zero max bytes", func(c *Config) { c.MaxBytes = 0 }, "max bytes"},
		{"short ids", func(c *Config) { c.IDLength = 3 }, "id length"},
		{"cache without ttl", func(c *Config) { c.CacheSize = 10; c.CacheTTL = 0 }, "cache ttl"},
		{"negative janitor", func(c *Config) { c.JanitorInterval = -time.Second }, "janitor"},
		{"janitor in test mode", func(c *Config) { c.TestMode = true; c.JanitorInterval = time.Minute }, "test mode"},
		{"bad argon2", func(c *Config) { c.Argon2.Time = 0 }, "argon2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PASTEBIN_BASE_URL=https://paste.example\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// Register cleanup for the variable godotenv is about to set.
	t.Setenv("PASTEBIN_BASE_URL", "")
	os.Unsetenv("PASTEBIN_BASE_URL")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.BaseURL != "https://paste.example" {
		t.Fatalf("base url %q", c.BaseURL)
	}
}
