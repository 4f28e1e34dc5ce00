package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the sync service configuration
type Config struct {
	// Database configuration
	DatabaseDriver string `mapstructure:"database_driver"` // sqlite3, postgres
	DatabasePath   string `mapstructure:"database_path"`
	DatabaseDSN    string `mapstructure:"database_dsn"`
	EncryptionKey  string `mapstructure:"encryption_key"` // base64, 32 bytes

	// Cache configuration
	CacheBackend string      `mapstructure:"cache_backend"` // memory, redis
	CacheTTL     int         `mapstructure:"cache_ttl"`     // seconds
	Redis        RedisConfig `mapstructure:"redis"`

	// Controller access configuration
	PageSize           int  `mapstructure:"page_size"`
	MembershipWorkers  int  `mapstructure:"membership_workers"`
	ParallelMembership bool `mapstructure:"parallel_membership"`
	RequestTimeout     int  `mapstructure:"request_timeout"` // seconds

	// Sync configuration
	SyncInterval int `mapstructure:"sync_interval"` // seconds, 0 disables the loop

	// API server configuration
	APIServer APIServerConfig `mapstructure:"api_server"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// APIServerConfig holds HTTP API configuration
type APIServerConfig struct {
	Host         string          `mapstructure:"host"`
	Port         int             `mapstructure:"port"`
	TLSEnabled   bool            `mapstructure:"tls_enabled"`
	TLSCertFile  string          `mapstructure:"tls_cert_file"`
	TLSKeyFile   string          `mapstructure:"tls_key_file"`
	ReadTimeout  int             `mapstructure:"read_timeout"`
	WriteTimeout int             `mapstructure:"write_timeout"`
	IdleTimeout  int             `mapstructure:"idle_timeout"`
	Auth         AuthConfig      `mapstructure:"auth"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	JWTSecret string   `mapstructure:"jwt_secret"`
	APIKeys   []string `mapstructure:"api_keys"`
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_minute"`
	BurstSize      int  `mapstructure:"burst_size"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DatabaseDriver: "sqlite3",
		DatabasePath:   "./dnac-sync.db",
		DatabaseDSN:    "",
		EncryptionKey:  "",
		CacheBackend:   "memory",
		CacheTTL:       300,
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		PageSize:           500,
		MembershipWorkers:  10,
		ParallelMembership: true,
		RequestTimeout:     30,
		SyncInterval:       0,
		APIServer: APIServerConfig{
			Host:         "0.0.0.0",
			Port:         8081,
			ReadTimeout:  30,
			WriteTimeout: 120,
			IdleTimeout:  120,
			Auth: AuthConfig{
				Enabled: true,
			},
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 120,
				BurstSize:      20,
			},
		},
		LogLevel: "info",
		LogFile:  "",
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dnac-sync")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dnac-sync"))
		}
	}

	// DNACSYNC_API_SERVER_PORT overrides api_server.port
	v.SetEnvPrefix("DNACSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see nested values
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("database_driver", cfg.DatabaseDriver)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("database_dsn", cfg.DatabaseDSN)
	v.SetDefault("encryption_key", cfg.EncryptionKey)
	v.SetDefault("cache_backend", cfg.CacheBackend)
	v.SetDefault("cache_ttl", cfg.CacheTTL)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.pool_size", cfg.Redis.PoolSize)
	v.SetDefault("page_size", cfg.PageSize)
	v.SetDefault("membership_workers", cfg.MembershipWorkers)
	v.SetDefault("parallel_membership", cfg.ParallelMembership)
	v.SetDefault("request_timeout", cfg.RequestTimeout)
	v.SetDefault("sync_interval", cfg.SyncInterval)
	v.SetDefault("api_server.host", cfg.APIServer.Host)
	v.SetDefault("api_server.port", cfg.APIServer.Port)
	v.SetDefault("api_server.tls_enabled", cfg.APIServer.TLSEnabled)
	v.SetDefault("api_server.tls_cert_file", cfg.APIServer.TLSCertFile)
	v.SetDefault("api_server.tls_key_file", cfg.APIServer.TLSKeyFile)
	v.SetDefault("api_server.read_timeout", cfg.APIServer.ReadTimeout)
	v.SetDefault("api_server.write_timeout", cfg.APIServer.WriteTimeout)
	v.SetDefault("api_server.idle_timeout", cfg.APIServer.IdleTimeout)
	v.SetDefault("api_server.auth.enabled", cfg.APIServer.Auth.Enabled)
	v.SetDefault("api_server.auth.jwt_secret", cfg.APIServer.Auth.JWTSecret)
	v.SetDefault("api_server.auth.api_keys", cfg.APIServer.Auth.APIKeys)
	v.SetDefault("api_server.rate_limit.enabled", cfg.APIServer.RateLimit.Enabled)
	v.SetDefault("api_server.rate_limit.requests_per_minute", cfg.APIServer.RateLimit.RequestsPerMin)
	v.SetDefault("api_server.rate_limit.burst_size", cfg.APIServer.RateLimit.BurstSize)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite3":
		if c.DatabasePath == "" {
			return fmt.Errorf("database_path is required for sqlite3")
		}
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database_dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database_driver must be one of: sqlite3, postgres")
	}

	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}

	switch c.CacheBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("cache_backend must be one of: memory, redis")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}

	if c.MembershipWorkers <= 0 {
		return fmt.Errorf("membership_workers must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}

	if c.SyncInterval < 0 {
		return fmt.Errorf("sync_interval must not be negative")
	}

	if c.APIServer.Port <= 0 || c.APIServer.Port > 65535 {
		return fmt.Errorf("api_server.port must be between 1 and 65535")
	}

	if c.APIServer.TLSEnabled && (c.APIServer.TLSCertFile == "" || c.APIServer.TLSKeyFile == "") {
		return fmt.Errorf("api_server.tls_cert_file and api_server.tls_key_file are required when TLS is enabled")
	}

	if c.APIServer.Auth.Enabled && c.APIServer.Auth.JWTSecret == "" && len(c.APIServer.Auth.APIKeys) == 0 {
		return fmt.Errorf("api_server.auth requires a jwt_secret or at least one api key when enabled")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}

	return nil
}

// EncryptionKeyBytes decodes the configured tenant password key
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, fmt.Errorf("encryption_key is required")
	}

	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key must be base64: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption_key must decode to 32 bytes, got %d", len(key))
	}

	return key, nil
}

// CacheTTLDuration returns the cache TTL as a duration
func (c *Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// RequestTimeoutDuration returns the per-request controller timeout
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// SyncIntervalDuration returns the automatic sync period, zero when disabled
func (c *Config) SyncIntervalDuration() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}
