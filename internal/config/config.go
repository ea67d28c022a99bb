// Package config loads and defaults the scheduler's tunables and the
// ambient services (admin API, auth, audit sink) built around it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	API       APIConfig       `yaml:"api" json:"api"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Audit     AuditConfig     `yaml:"audit" json:"audit"`
}

// SchedulerConfig holds the BFS deadline/quantum/skiplist tunables from
// spec.md §4.1/§4.2/§3.
type SchedulerConfig struct {
	DefaultQuantum int     `yaml:"default_quantum" json:"default_quantum"`
	NiceFirst      int     `yaml:"nice_first" json:"nice_first"`
	NiceLast       int     `yaml:"nice_last" json:"nice_last"`
	MaxLevel       int     `yaml:"max_level" json:"max_level"`
	NProc          int     `yaml:"nproc" json:"nproc"`
	Chance         float64 `yaml:"chance" json:"chance"`
	Seed           uint32  `yaml:"seed" json:"seed"`
}

// APIConfig holds the admin HTTP/WebSocket server configuration.
type APIConfig struct {
	Listen    string          `yaml:"listen" json:"listen"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Cors      CorsConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig bounds per-client request rate on the admin API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// CorsConfig configures cross-origin access to the admin API.
type CorsConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// AuthConfig configures the JWT bearer-auth guard on mutating admin
// endpoints, and the static operator credential it is issued against.
type AuthConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	Issuer           string        `yaml:"issuer" json:"issuer"`
	TokenExpiry      time.Duration `yaml:"token_expiry" json:"token_expiry"`
	OperatorUser     string        `yaml:"operator_user" json:"operator_user"`
	OperatorPassHash string        `yaml:"operator_pass_hash" json:"operator_pass_hash"`
}

// AuditConfig configures the optional Postgres sink for reaped tasks.
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultConfig returns the configuration matching spec.md's worked
// examples: DEFAULT_QUANTUM=50, NICE_FIRST=-20, NICE_LAST=19, MAX_LEVEL=4,
// CHANCE=0.25, SEED=62301983 (straight from the original bfs.h).
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			DefaultQuantum: getEnvIntOrDefault("BFS_DEFAULT_QUANTUM", 50),
			NiceFirst:      getEnvIntOrDefault("BFS_NICE_FIRST", -20),
			NiceLast:       getEnvIntOrDefault("BFS_NICE_LAST", 19),
			MaxLevel:       getEnvIntOrDefault("BFS_MAX_LEVEL", 4),
			NProc:          getEnvIntOrDefault("BFS_NPROC", 64),
			Chance:         0.25,
			Seed:           uint32(getEnvIntOrDefault("BFS_SEED", 62301983)),
		},
		API: APIConfig{
			Listen: getEnvOrDefault("BFSCHED_API_LISTEN", "127.0.0.1:8080"),
			RateLimit: RateLimitConfig{
				Enabled:           getEnvBoolOrDefault("BFSCHED_RATE_LIMIT_ENABLED", true),
				RequestsPerSecond: 20,
				Burst:             40,
			},
			Cors: CorsConfig{
				Enabled:        getEnvBoolOrDefault("BFSCHED_CORS_ENABLED", true),
				AllowedOrigins: []string{"*"},
			},
		},
		Auth: AuthConfig{
			Enabled:          getEnvBoolOrDefault("BFSCHED_AUTH_ENABLED", true),
			Issuer:           "bfsched",
			TokenExpiry:      8 * time.Hour,
			OperatorUser:     getEnvOrDefault("BFSCHED_OPERATOR_USER", "operator"),
			OperatorPassHash: getEnvOrDefault("BFSCHED_OPERATOR_PASS_HASH", ""),
		},
		Audit: AuditConfig{
			Enabled:         getEnvOrDefault("BFSCHED_AUDIT_DSN", "") != "",
			DSN:             getEnvOrDefault("BFSCHED_AUDIT_DSN", ""),
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
	}
}

// Load reads a YAML file at path and overlays it onto DefaultConfig.
// Environment variables are read by DefaultConfig before the file is parsed,
// so a value set in the file takes precedence over the environment. A
// missing path is not an error: DefaultConfig alone is returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the invariants spec.md §4.1 requires of the tunables:
// NiceFirst <= 0 and prio_ratio positive for every legal niceness.
func (c *Config) Validate() error {
	s := c.Scheduler
	if s.NiceFirst > 0 {
		return fmt.Errorf("config: nice_first must be <= 0, got %d", s.NiceFirst)
	}
	if s.NiceLast < s.NiceFirst {
		return fmt.Errorf("config: nice_last (%d) must be >= nice_first (%d)", s.NiceLast, s.NiceFirst)
	}
	if s.DefaultQuantum <= 0 {
		return fmt.Errorf("config: default_quantum must be positive, got %d", s.DefaultQuantum)
	}
	if s.MaxLevel <= 0 {
		return fmt.Errorf("config: max_level must be positive, got %d", s.MaxLevel)
	}
	if s.NProc <= 0 {
		return fmt.Errorf("config: nproc must be positive, got %d", s.NProc)
	}
	if s.Chance <= 0 || s.Chance >= 1 {
		return fmt.Errorf("config: chance must be in (0,1), got %f", s.Chance)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
