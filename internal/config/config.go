package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoDatabase is returned alongside a usable Config when DATABASE_URL is
// unset. Callers may run without watchlists.
var ErrNoDatabase = errors.New("DATABASE_URL not set")

type Config struct {
	Env         string `yaml:"env"`
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`
	Migrate     bool   `yaml:"migrate"`
	RedisURL    string `yaml:"redis_url"`

	Screening struct {
		URL          string        `yaml:"url"` // empty runs the local simulator
		Timeout      time.Duration `yaml:"timeout"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"screening"`

	// Local backend, used when Screening.URL is empty.
	ScanWorkers int           `yaml:"scan_workers"`
	ScreenDelay time.Duration `yaml:"screen_delay"`

	Logging struct {
		Format string `yaml:"format"` // "json"|"text"
		Level  string `yaml:"level"`  // "info"|"debug"|"warn"|"error"
	} `yaml:"logging"`
}

func Default() Config {
	var c Config
	c.Env = "development"
	c.ListenAddr = ":8080"
	c.Migrate = true
	c.Screening.Timeout = 30 * time.Second
	c.Screening.PollInterval = 2 * time.Second
	c.ScanWorkers = 2
	c.ScreenDelay = 250 * time.Millisecond
	c.Logging.Format = "json"
	c.Logging.Level = "info"
	return c
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Load reads defaults, then the YAML file at path (a missing file is fine),
// then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.Env = getenv("APP_ENV", cfg.Env)
	cfg.ListenAddr = getenv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Migrate = getenvBool("DB_MIGRATE", cfg.Migrate)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.Screening.URL = getenv("SCREENING_URL", cfg.Screening.URL)
	cfg.Screening.Timeout = getenvDuration("SCREENING_TIMEOUT", cfg.Screening.Timeout)
	cfg.Screening.PollInterval = getenvDuration("POLL_INTERVAL", cfg.Screening.PollInterval)
	cfg.ScanWorkers = getenvInt("SCAN_WORKERS", cfg.ScanWorkers)
	cfg.ScreenDelay = getenvDuration("SCREEN_DELAY", cfg.ScreenDelay)
	cfg.Logging.Format = getenv("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenv("LOG_LEVEL", cfg.Logging.Level)

	if cfg.Screening.PollInterval <= 0 {
		return cfg, fmt.Errorf("poll interval must be positive, got %s", cfg.Screening.PollInterval)
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for local runs; warn via error value so callers can decide.
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}
