package config

import (
	"strconv"
	"time"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains DNS listener settings.
//
// Duration knobs are JSON strings ("4s", "500ms"); Validate parses them
// into the typed fields.
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Workers         WorkerSetting `json:"-"`
	WorkersRaw      string        `json:"workers"`
	MaxConcurrency  int           `json:"max_concurrency"`
	EnableTCP       bool          `json:"enable_tcp"`
	QueryTimeout    time.Duration `json:"-"`
	QueryTimeoutRaw string        `json:"query_timeout"`
}

// UpstreamConfig contains upstream DNS server settings.
type UpstreamConfig struct {
	Servers       []string      `json:"servers"`
	PoolSize      int           `json:"pool_size"`
	UDPTimeout    time.Duration `json:"-"`
	UDPTimeoutRaw string        `json:"udp_timeout"`
	TCPTimeout    time.Duration `json:"-"`
	TCPTimeoutRaw string        `json:"tcp_timeout"`
	MaxRetries    int           `json:"max_retries"`
	TCPFallback   bool          `json:"tcp_fallback"`
}

// CacheConfig contains record cache settings.
type CacheConfig struct {
	// MaxEntries caps the number of cached answers. 0 means unlimited.
	MaxEntries       int           `json:"max_entries"`
	MinTTL           time.Duration `json:"-"`
	MinTTLRaw        string        `json:"min_ttl"`
	MaxTTL           time.Duration `json:"-"`
	MaxTTLRaw        string        `json:"max_ttl"`
	SweepInterval    time.Duration `json:"-"`
	SweepIntervalRaw string        `json:"sweep_interval"`
}

// PersistenceConfig controls cache checkpointing to disk or Redis.
type PersistenceConfig struct {
	Enabled               bool          `json:"enabled"`
	Backend               string        `json:"backend"` // "sqlite" or "redis"
	Path                  string        `json:"path"`    // sqlite database file
	RedisAddr             string        `json:"redis_addr"`
	RedisPassword         string        `json:"redis_password,omitempty"`
	RedisDB               int           `json:"redis_db"`
	CheckpointInterval    time.Duration `json:"-"`
	CheckpointIntervalRaw string        `json:"checkpoint_interval"`
}

// RateLimitConfig controls UDP admission control.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	// CleanupSeconds is how often stale client entries are dropped (default: 60)
	CleanupSeconds float64 `json:"cleanup_seconds"`
	// MaxClients is the maximum number of tracked source IPs (default: 65536)
	MaxClients int `json:"max_clients"`
	// GlobalQPS is the server-wide queries per second limit (0 = unlimited)
	GlobalQPS   float64 `json:"global_qps"`
	GlobalBurst int     `json:"global_burst"`
	// ClientQPS is the per-source-IP QPS limit (0 = unlimited)
	ClientQPS   float64 `json:"client_qps"`
	ClientBurst int     `json:"client_burst"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `json:"level"`
	Structured       bool              `json:"structured"`
	StructuredFormat string            `json:"structured_format"`
	IncludePID       bool              `json:"include_pid"`
	ExtraFields      map[string]string `json:"extra_fields,omitempty"`
}

// APIConfig contains management API settings.
//
// Note: APIKey is intentionally treated as a secret and should not be returned by API endpoints.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	APIKey  string `json:"api_key,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Upstream    UpstreamConfig    `json:"upstream"`
	Cache       CacheConfig       `json:"cache"`
	Persistence PersistenceConfig `json:"persistence"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
	Logging     LoggingConfig     `json:"logging"`
	API         APIConfig         `json:"api"`
}
