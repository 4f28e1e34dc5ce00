package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testKey() string {
	return base64.StdEncoding.EncodeToString(make([]byte, 32))
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.EncryptionKey = testKey()
	cfg.APIServer.Auth.APIKeys = []string{"test-key"}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PageSize != 500 {
		t.Errorf("Expected page size 500, got %d", cfg.PageSize)
	}

	if cfg.MembershipWorkers != 10 {
		t.Errorf("Expected 10 membership workers, got %d", cfg.MembershipWorkers)
	}

	if cfg.CacheTTLDuration() != 5*time.Minute {
		t.Errorf("Expected 5 minute cache TTL, got %s", cfg.CacheTTLDuration())
	}

	if !cfg.ParallelMembership {
		t.Error("Parallel membership lookups should be enabled by default")
	}

	if cfg.SyncIntervalDuration() != 0 {
		t.Error("Automatic sync should be disabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing encryption key", func(c *Config) { c.EncryptionKey = "" }, true},
		{"short encryption key", func(c *Config) { c.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("short")) }, true},
		{"encryption key not base64", func(c *Config) { c.EncryptionKey = "%%%" }, true},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, true},
		{"postgres without dsn", func(c *Config) { c.DatabaseDriver = "postgres" }, true},
		{"postgres with dsn", func(c *Config) {
			c.DatabaseDriver = "postgres"
			c.DatabaseDSN = "postgres://localhost/netbox?sslmode=disable"
		}, false},
		{"unknown cache backend", func(c *Config) { c.CacheBackend = "memcached" }, true},
		{"redis without addr", func(c *Config) {
			c.CacheBackend = "redis"
			c.Redis.Addr = ""
		}, true},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, true},
		{"zero workers", func(c *Config) { c.MembershipWorkers = 0 }, true},
		{"negative sync interval", func(c *Config) { c.SyncInterval = -1 }, true},
		{"bad port", func(c *Config) { c.APIServer.Port = 70000 }, true},
		{"tls without cert", func(c *Config) { c.APIServer.TLSEnabled = true }, true},
		{"auth without credentials", func(c *Config) { c.APIServer.Auth.APIKeys = nil }, true},
		{"auth disabled without credentials", func(c *Config) {
			c.APIServer.Auth.Enabled = false
			c.APIServer.Auth.APIKeys = nil
		}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := "encryption_key: " + testKey() + "\n" +
		"page_size: 250\n" +
		"membership_workers: 4\n" +
		"cache_backend: redis\n" +
		"redis:\n  addr: cache.local:6379\n" +
		"api_server:\n  port: 9000\n  auth:\n    api_keys: [abc]\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.PageSize != 250 {
		t.Errorf("Expected page size 250, got %d", cfg.PageSize)
	}
	if cfg.MembershipWorkers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.MembershipWorkers)
	}
	if cfg.Redis.Addr != "cache.local:6379" {
		t.Errorf("Expected redis addr cache.local:6379, got %s", cfg.Redis.Addr)
	}
	if cfg.APIServer.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.APIServer.Port)
	}
	if cfg.CacheTTL != 300 {
		t.Errorf("Expected default cache TTL to survive, got %d", cfg.CacheTTL)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := "encryption_key: " + testKey() + "\napi_server:\n  auth:\n    api_keys: [abc]\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("DNACSYNC_PAGE_SIZE", "100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.PageSize != 100 {
		t.Errorf("Expected env override page size 100, got %d", cfg.PageSize)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("page_size: 500\n"), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for config without encryption key")
	}
}
