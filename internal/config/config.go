// Package config loads service settings from the environment.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"pastebin-lite/internal/security"
)

const envPrefix = "PASTEBIN_"

// Store drivers.
const (
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds every runtime knob. Flags in cmd/pastebin override the
// environment values.
type Config struct {
	Addr        string
	StoreDriver string
	DataPath    string
	RedisURL    string
	RedisGrace  time.Duration
	PostgresDSN string

	BaseURL      string
	MaxBytes     int
	IDLength     int
	TrustProxy   bool
	RevealReason bool
	TestMode     bool

	CacheSize       int
	CacheTTL        time.Duration
	JanitorInterval time.Duration

	Argon2 security.Params

	LogLevel string
	DevLog   bool
}

// LoadDotEnv loads the given env files, skipping ones that do not exist.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "stat %s", p)
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

// Load reads the configuration from PASTEBIN_* variables.
func Load() (*Config, error) {
	c := &Config{
		Addr:        getEnv("ADDR", ":8080"),
		StoreDriver: strings.ToLower(getEnv("STORE", DriverBolt)),
		DataPath:    getEnv("DATA", "./pastebin.db"),
		RedisURL:    getEnv("REDIS_URL", ""),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		BaseURL:     getEnv("BASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
	var err error
	if c.MaxBytes, err = getInt("MAX_BYTES", 1_048_576); err != nil {
		return nil, err
	}
	if c.IDLength, err = getInt("ID_LENGTH", 12); err != nil {
		return nil, err
	}
	if c.TrustProxy, err = getBool("BEHIND_PROXY", false); err != nil {
		return nil, err
	}
	if c.RevealReason, err = getBool("REVEAL_REASON", false); err != nil {
		return nil, err
	}
	if c.TestMode, err = getBool("TEST_MODE", false); err != nil {
		return nil, err
	}
	// The bare TEST_MODE=1 switch is honoured for existing deploy scripts.
	if os.Getenv("TEST_MODE") == "1" {
		c.TestMode = true
	}
	if c.DevLog, err = getBool("DEV_LOG", false); err != nil {
		return nil, err
	}
	if c.CacheSize, err = getInt("CACHE_SIZE", 0); err != nil {
		return nil, err
	}
	if c.CacheTTL, err = getDuration("CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if c.JanitorInterval, err = getDuration("JANITOR_INTERVAL", 0); err != nil {
		return nil, err
	}
	if c.RedisGrace, err = getDuration("REDIS_GRACE", time.Hour); err != nil {
		return nil, err
	}

	c.Argon2 = security.DefaultParams
	if c.Argon2.Time, err = getUint32("ARGON2_TIME", c.Argon2.Time); err != nil {
		return nil, err
	}
	if c.Argon2.Memory, err = getUint32("ARGON2_MEMORY", c.Argon2.Memory); err != nil {
		return nil, err
	}
	threads, err := getUint32("ARGON2_THREADS", uint32(c.Argon2.Threads))
	if err != nil {
		return nil, err
	}
	if threads > 255 {
		return nil, errors.New(envPrefix + "ARGON2_THREADS must be <= 255")
	}
	c.Argon2.Threads = uint8(threads)
	if c.Argon2.KeyLen, err = getUint32("ARGON2_KEYLEN", c.Argon2.KeyLen); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks c for values the service cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	switch c.StoreDriver {
	case DriverBolt, DriverSQLite:
		if c.DataPath == "" {
			return errors.Errorf("%s store needs a data path", c.StoreDriver)
		}
	case DriverRedis:
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("redis store needs a redis:// or rediss:// url")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres store needs a dsn")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return errors.Wrap(err, "invalid base url")
		}
		if u.Scheme == "" || u.Host == "" {
			return errors.New("base url must include scheme and host")
		}
	}
	if c.MaxBytes <= 0 {
		return errors.New("max bytes must be positive")
	}
	if c.IDLength < 6 || c.IDLength > 64 {
		return errors.New("id length must be between 6 and 64")
	}
	if c.CacheSize < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.CacheSize > 0 && c.CacheTTL <= 0 {
		return errors.New("cache ttl must be positive when the cache is enabled")
	}
	if c.JanitorInterval < 0 {
		return errors.New("janitor interval cannot be negative")
	}
	// The janitor purges by the wall clock, which disagrees with header time.
	if c.TestMode && c.JanitorInterval > 0 {
		return errors.New("janitor cannot run in test mode")
	}
	if err := c.Argon2.Validate(); err != nil {
		return errors.Wrap(err, "argon2")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer for %s%s", envPrefix, key)
	}
	return v, nil
}

func getUint32(key string, fallback uint32) (uint32, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid uint32 for %s%s", envPrefix, key)
	}
	return uint32(v), nil
}

func getBool(key string, fallback bool) (bool, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, errors.Wrapf(err, "invalid bool for %s%s", envPrefix, key)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration for %s%s", envPrefix, key)
	}
	return v, nil
}
