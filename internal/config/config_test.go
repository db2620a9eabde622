package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/marketplace-gateway/pkg/logging"
)

// inTempDir runs the test from an empty directory so no gateway.yaml is found.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("GATEWAY_BACKEND_BASE_URL", "https://shop.example.com/wp-json")
	t.Setenv("GATEWAY_BACKEND_API_KEY", "ck_live")
	t.Setenv("GATEWAY_BACKEND_API_SECRET", "cs_live")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "https://shop.example.com/wp-json" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Backend.Timeout)
	}
	if cfg.Backend.RetryBudget != 3 || cfg.Backend.RetryBackoff != time.Second {
		t.Errorf("retry = %d/%v, want 3/1s", cfg.Backend.RetryBudget, cfg.Backend.RetryBackoff)
	}
	if cfg.Cache.TTL != 5*time.Minute || cfg.Cache.Capacity != 100 {
		t.Errorf("cache = %v/%d, want 5m/100", cfg.Cache.TTL, cfg.Cache.Capacity)
	}
	if cfg.Invalidation.Channel != "gateway:invalidations" || cfg.Invalidation.Timeout != 2*time.Second {
		t.Errorf("invalidation = %+v", cfg.Invalidation)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.RedisEnabled() {
		t.Error("Redis enabled without an address")
	}
}

func TestLoad_File(t *testing.T) {
	dir := inTempDir(t)
	content := `
backend:
  base_url: http://localhost:8081/wp-json
  timeout: 500ms
  retry_budget: 1
cache:
  ttl: 30s
  capacity: 10
redis:
  addr: localhost:6379
log:
  level: debug
  pretty: true
`
	if err := os.WriteFile(filepath.Join(dir, "gateway.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("GATEWAY_SERVER_PORT", "9090")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.Timeout != 500*time.Millisecond || cfg.Backend.RetryBudget != 1 {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Cache.TTL != 30*time.Second || cfg.Cache.Capacity != 10 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.RedisEnabled() {
		t.Error("Redis not enabled")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, env must override file", cfg.Server.Port)
	}

	logCfg := cfg.LoggingConfig()
	if logCfg.Level != logging.LevelDebug || !logCfg.Pretty {
		t.Errorf("LoggingConfig() = %+v", logCfg)
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	inTempDir(t)

	if _, err := Load(Options{File: "does-not-exist.yaml"}); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	inTempDir(t)
	t.Setenv("GATEWAY_BACKEND_BASE_URL", "https://shop.example.com")
	base, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing base url", func(c *Config) { c.Backend.BaseURL = "" }, "BaseURL"},
		{"key without secret", func(c *Config) { c.Backend.APIKey = "ck" }, "APISecret"},
		{"retry budget too high", func(c *Config) { c.Backend.RetryBudget = 11 }, "RetryBudget"},
		{"negative retry budget", func(c *Config) { c.Backend.RetryBudget = -1 }, "RetryBudget"},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }, "Capacity"},
		{"bad redis addr", func(c *Config) { c.Redis.Addr = "no-port" }, "Addr"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "Level"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "Port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %s", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestClientConfig(t *testing.T) {
	cfg := Config{
		Backend: BackendConfig{
			BaseURL:      "https://shop.example.com",
			APIKey:       "ck",
			APISecret:    "cs",
			UserAgent:    "ua",
			Timeout:      time.Second,
			RetryBudget:  2,
			RetryBackoff: 250 * time.Millisecond,
		},
		Cache: CacheConfig{TTL: time.Minute, Capacity: 5},
	}

	cc := cfg.ClientConfig()
	if cc.BaseURL != cfg.Backend.BaseURL || !cc.Credentials.Configured() {
		t.Errorf("ClientConfig() = %+v", cc)
	}
	if cc.Retry.Budget != 2 || cc.Retry.BaseBackoff != 250*time.Millisecond {
		t.Errorf("Retry = %+v", cc.Retry)
	}
	if cc.Cache.TTL != time.Minute || cc.Cache.Capacity != 5 {
		t.Errorf("Cache = %+v", cc.Cache)
	}
}
