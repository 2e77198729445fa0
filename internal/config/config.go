package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type FMP struct {
	Enabled     bool   `json:"enabled"`
	APIKey      string `json:"api_key"`
	Endpoint    string `json:"endpoint"` // base URL override, mostly for tests
	TimeoutMs   int    `json:"timeout_ms"`
	MaxAttempts int    `json:"max_attempts"`
	RetryBaseMs int    `json:"retry_base_ms"`
}

type Yahoo struct {
	Enabled      bool     `json:"enabled"`
	Hosts        []string `json:"hosts"`
	TimeoutMs    int      `json:"timeout_ms"`
	MaxAttempts  int      `json:"max_attempts"`
	RetryBaseMs  int      `json:"retry_base_ms"`
	BatchSize    int      `json:"batch_size"`
	BatchDelayMs int      `json:"batch_delay_ms"`
}

type Cache struct {
	FreshTTLSec   int    `json:"fresh_ttl_sec"`
	StaleTTLSec   int    `json:"stale_ttl_sec"`
	RedisAddr     string `json:"redis_addr"` // empty keeps the in-memory store
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

type Aggregator struct {
	// AcceptRatio is the primary-coverage fraction below which the
	// secondary provider fills the gap. One documented constant for all
	// endpoints.
	AcceptRatio    float64  `json:"accept_ratio"`
	MaxSymbols     int      `json:"max_symbols"` // 0 resolves per tier: 50 keyed, 100 free
	DefaultSymbols []string `json:"default_symbols"`
}

type Config struct {
	Server     Server     `json:"server"`
	FMP        FMP        `json:"fmp"`
	Yahoo      Yahoo      `json:"yahoo"`
	Cache      Cache      `json:"cache"`
	Aggregator Aggregator `json:"aggregator"`
	// TestMode disables caching and backoff/inter-batch delays for
	// repeatable tests.
	TestMode bool `json:"test_mode"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 15},
		FMP: FMP{
			Enabled:     true,
			TimeoutMs:   8000,
			MaxAttempts: 1,
			RetryBaseMs: 250,
		},
		Yahoo: Yahoo{
			Enabled: true,
			Hosts: []string{
				"https://query1.finance.yahoo.com",
				"https://query2.finance.yahoo.com",
			},
			TimeoutMs:    8000,
			MaxAttempts:  2,
			RetryBaseMs:  200,
			BatchSize:    10,
			BatchDelayMs: 100,
		},
		Cache: Cache{
			FreshTTLSec: 90,
			StaleTTLSec: 300,
		},
		Aggregator: Aggregator{
			AcceptRatio:    0.5,
			DefaultSymbols: []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA"},
		},
	}
}

// Strict reports whether symbol validation runs in strict mode: the
// keyed batch tier validates, the free tier does not.
func (c Config) Strict() bool {
	return c.FMP.Enabled && c.FMP.APIKey != ""
}

// Load reads JSON config from path. If path is empty or file does not
// exist, it returns defaults. Environment variables override select
// fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	if cfg.Aggregator.MaxSymbols <= 0 {
		if cfg.Strict() {
			cfg.Aggregator.MaxSymbols = 50
		} else {
			cfg.Aggregator.MaxSymbols = 100
		}
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}
	if v := os.Getenv("FMP_API_KEY"); v != "" {
		cfg.FMP.APIKey = v
	}
	if v := os.Getenv("FMP_ENDPOINT"); v != "" {
		cfg.FMP.Endpoint = v
	}
	if v := os.Getenv("FMP_TIMEOUT_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.FMP.TimeoutMs = x
		}
	}
	if v := os.Getenv("FMP_MAX_ATTEMPTS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.FMP.MaxAttempts = x
		}
	}
	if v := os.Getenv("YAHOO_HOSTS"); v != "" {
		cfg.Yahoo.Hosts = splitCSV(v)
	}
	if v := os.Getenv("YAHOO_TIMEOUT_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Yahoo.TimeoutMs = x
		}
	}
	if v := os.Getenv("YAHOO_BATCH_SIZE"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Yahoo.BatchSize = x
		}
	}
	if v := os.Getenv("YAHOO_BATCH_DELAY_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Yahoo.BatchDelayMs = x
		}
	}
	if v := os.Getenv("CACHE_FRESH_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Cache.FreshTTLSec = x
		}
	}
	if v := os.Getenv("CACHE_STALE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Cache.StaleTTLSec = x
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Cache.RedisDB = x
		}
	}
	if v := os.Getenv("ACCEPT_RATIO"); v != "" {
		var x float64
		fmt.Sscanf(v, "%f", &x)
		if x > 0 && x <= 1 {
			cfg.Aggregator.AcceptRatio = x
		}
	}
	if v := os.Getenv("MAX_SYMBOLS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Aggregator.MaxSymbols = x
		}
	}
	if v := os.Getenv("DEFAULT_SYMBOLS"); v != "" {
		cfg.Aggregator.DefaultSymbols = splitCSV(v)
	}
	if v := os.Getenv("TEST_MODE"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y":
			cfg.TestMode = true
		case "0", "false", "no", "n":
			cfg.TestMode = false
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
