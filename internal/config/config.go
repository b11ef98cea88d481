// Package config loads and validates the CairnDNS configuration.
//
// Configuration lives in a single JSON file. The path comes from the
// -config flag, falling back to the CAIRNDNS_CONFIG environment variable;
// with neither set, built-in defaults apply. A handful of CAIRNDNS_*
// environment variables override individual fields after the file is read,
// which keeps container deployments away from templated config files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ResolveConfigPath picks the configuration file path: the flag value wins,
// then the CAIRNDNS_CONFIG environment variable. Empty means defaults only.
func ResolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv("CAIRNDNS_CONFIG"))
}

// Default returns the built-in configuration. Every knob has a workable
// value so an empty config file (or none at all) yields a running resolver.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            1053,
			WorkersRaw:      "auto",
			EnableTCP:       true,
			QueryTimeoutRaw: "4s",
		},
		Upstream: UpstreamConfig{
			Servers:       []string{"8.8.8.8"},
			UDPTimeoutRaw: "3s",
			TCPTimeoutRaw: "5s",
			MaxRetries:    3,
			TCPFallback:   true,
		},
		Cache: CacheConfig{
			MaxEntries:       65536,
			MinTTLRaw:        "0s",
			MaxTTLRaw:        "0s",
			SweepIntervalRaw: "30s",
		},
		Persistence: PersistenceConfig{
			Backend:               "sqlite",
			Path:                  "cairndns.db",
			CheckpointIntervalRaw: "5m",
		},
		RateLimit: RateLimitConfig{
			CleanupSeconds: 60,
			MaxClients:     65536,
			GlobalQPS:      100000,
			GlobalBurst:    100000,
			ClientQPS:      3000,
			ClientBurst:    6000,
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// Load reads the configuration file at path (defaults only when path is
// empty), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies CAIRNDNS_* environment variables on top of the
// loaded file. Only the knobs that matter for containerized deployments are
// covered.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAIRNDNS_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CAIRNDNS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("CAIRNDNS_WORKERS"); v != "" {
		cfg.Server.WorkersRaw = v
	}
	if v := os.Getenv("CAIRNDNS_UPSTREAM_SERVERS"); v != "" {
		servers := make([]string, 0, 3)
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				servers = append(servers, s)
			}
		}
		if len(servers) > 0 {
			cfg.Upstream.Servers = servers
		}
	}
	if v := os.Getenv("CAIRNDNS_ENABLE_TCP"); v != "" {
		cfg.Server.EnableTCP = envBool(v, cfg.Server.EnableTCP)
	}
	if v := os.Getenv("CAIRNDNS_TCP_FALLBACK"); v != "" {
		cfg.Upstream.TCPFallback = envBool(v, cfg.Upstream.TCPFallback)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// envBool interprets common boolean spellings, returning def for anything
// unrecognized.
func envBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Validate validates and normalizes the configuration. Errors name the
// offending field path in JSON notation (e.g. "upstream.udp_timeout").
func (cfg *Config) Validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1..65535, got %d", cfg.Server.Port)
	}

	workers, err := parseWorkers(cfg.Server.WorkersRaw)
	if err != nil {
		return err
	}
	cfg.Server.Workers = workers

	if cfg.Server.QueryTimeout, err = parseDurationField("server.query_timeout", cfg.Server.QueryTimeoutRaw, 4*time.Second); err != nil {
		return err
	}

	// Default upstream servers, capped at 3 (strict-order failover)
	if len(cfg.Upstream.Servers) == 0 {
		cfg.Upstream.Servers = []string{"8.8.8.8"}
	}
	if len(cfg.Upstream.Servers) > 3 {
		cfg.Upstream.Servers = cfg.Upstream.Servers[:3]
	}
	if cfg.Upstream.UDPTimeout, err = parseDurationField("upstream.udp_timeout", cfg.Upstream.UDPTimeoutRaw, 3*time.Second); err != nil {
		return err
	}
	if cfg.Upstream.TCPTimeout, err = parseDurationField("upstream.tcp_timeout", cfg.Upstream.TCPTimeoutRaw, 5*time.Second); err != nil {
		return err
	}
	if cfg.Upstream.MaxRetries <= 0 {
		cfg.Upstream.MaxRetries = 3
	}

	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be >= 0, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.MinTTL, err = parseDurationField("cache.min_ttl", cfg.Cache.MinTTLRaw, 0); err != nil {
		return err
	}
	if cfg.Cache.MaxTTL, err = parseDurationField("cache.max_ttl", cfg.Cache.MaxTTLRaw, 0); err != nil {
		return err
	}
	if cfg.Cache.MaxTTL > 0 && cfg.Cache.MinTTL > cfg.Cache.MaxTTL {
		return errors.New("cache.min_ttl must not exceed cache.max_ttl")
	}
	if cfg.Cache.SweepInterval, err = parseDurationField("cache.sweep_interval", cfg.Cache.SweepIntervalRaw, 30*time.Second); err != nil {
		return err
	}

	if cfg.Persistence.CheckpointInterval, err = parseDurationField("persistence.checkpoint_interval", cfg.Persistence.CheckpointIntervalRaw, 5*time.Minute); err != nil {
		return err
	}
	if cfg.Persistence.Enabled {
		switch cfg.Persistence.Backend {
		case "sqlite":
			if cfg.Persistence.Path == "" {
				cfg.Persistence.Path = "cairndns.db"
			}
		case "redis":
			if cfg.Persistence.RedisAddr == "" {
				return errors.New("persistence.redis_addr is required for the redis backend")
			}
		default:
			return fmt.Errorf("persistence.backend must be %q or %q, got %q", "sqlite", "redis", cfg.Persistence.Backend)
		}
	}

	if cfg.RateLimit.CleanupSeconds <= 0 {
		cfg.RateLimit.CleanupSeconds = 60
	}
	if cfg.RateLimit.MaxClients <= 0 {
		cfg.RateLimit.MaxClients = 65536
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return fmt.Errorf("api.port must be 1..65535, got %d", cfg.API.Port)
		}
	}

	return nil
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) (WorkerSetting, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}, nil
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}, nil
	}
	return WorkerSetting{}, fmt.Errorf("server.workers must be %q or a positive integer, got %q", "auto", raw)
}

// parseDurationField parses a duration knob, substituting def when the
// field is empty. Negative durations are rejected.
func parseDurationField(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", field, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, d)
	}
	return d, nil
}
