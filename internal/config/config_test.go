package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv unsets every variable the loader reads and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range envKeyMap {
		if prev, ok := os.LookupEnv(key); ok {
			os.Unsetenv(key)
			t.Cleanup(func() { os.Setenv(key, prev) })
		}
	}
}

func TestLoadWithDefaults_Succeeds(t *testing.T) {
	cfg, err := LoadWithDefaults()
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if cfg.GRPC.Address() != "0.0.0.0:50051" || cfg.HTTP.Address() != "0.0.0.0:8080" {
		t.Fatalf("unexpected listen addresses: %s", cfg)
	}
	if cfg.Proxy.CallTimeout != 5*time.Second {
		t.Fatalf("call timeout = %v, want 5s", cfg.Proxy.CallTimeout)
	}
	if cfg.Store.Backend != BackendMemory || !cfg.Store.Seed {
		t.Fatalf("unexpected store defaults: %+v", cfg.Store)
	}
	if len(cfg.CORS.AllowedOrigins) != 4 || !cfg.CORS.AllowCredentials {
		t.Fatalf("unexpected cors defaults: %+v", cfg.CORS)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GRPC_PORT", "6000")
	t.Setenv("PROXY_PORT", "9090")
	t.Setenv("GRPC_SERVER_URL", "users:6000")
	t.Setenv("GRPC_CALL_TIMEOUT", "750ms")
	t.Setenv("STORE_SEED", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPC.Port != 6000 || cfg.HTTP.Port != 9090 {
		t.Fatalf("ports not overridden: %s", cfg)
	}
	if cfg.Proxy.GRPCTarget != "users:6000" || cfg.Proxy.CallTimeout != 750*time.Millisecond {
		t.Fatalf("proxy not overridden: %+v", cfg.Proxy)
	}
	if cfg.Store.Seed {
		t.Fatalf("STORE_SEED=false not applied")
	}
	if got := strings.Join(cfg.CORS.AllowedOrigins, " "); got != "http://a.test http://b.test" {
		t.Fatalf("origins = %q", got)
	}
}

func TestLoad_ListValuesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test,http://c.test ")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"http://a.test", "http://b.test", "http://c.test"}
	if len(cfg.CORS.AllowedOrigins) != len(want) {
		t.Fatalf("origins = %q, want %q", cfg.CORS.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.CORS.AllowedOrigins[i] != want[i] {
			t.Fatalf("origins[%d] = %q, want %q", i, cfg.CORS.AllowedOrigins[i], want[i])
		}
	}
	if got := strings.Join(cfg.Proxy.TrustedProxies, " "); got != "10.0.0.0/8 192.168.1.1" {
		t.Fatalf("trusted proxies = %q", got)
	}
}

func TestLoad_EmptyTrustedProxiesByDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Proxy.TrustedProxies) != 0 {
		t.Fatalf("trusted proxies = %q, want none", cfg.Proxy.TrustedProxies)
	}
}

func TestLoad_MetricsListener(t *testing.T) {
	clearEnv(t)
	t.Setenv("METRICS_PORT", "9191")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address() != "0.0.0.0:9191" || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := "grpc:\n  port: 7000\nlog:\n  level: debug\n  format: console\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPC.Port != 7000 {
		t.Fatalf("file value not applied: port=%d", cfg.GRPC.Port)
	}
	if cfg.Log.Format != "console" || cfg.Log.Level != "warn" {
		t.Fatalf("log = %+v, want console/warn", cfg.Log)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := map[string]map[string]string{
		"bad environment":    {"APP_ENV": "staging"},
		"port out of range":  {"GRPC_PORT": "70000"},
		"non-numeric port":   {"PROXY_PORT": "eighty"},
		"zero call timeout":  {"GRPC_CALL_TIMEOUT": "0s"},
		"unknown backend":    {"STORE_BACKEND": "postgres"},
		"file-backed sqlite": {"STORE_BACKEND": "sqlite", "STORE_DSN": "users.db"},
		"cors wildcard":      {"CORS_ALLOWED_ORIGINS": "*"},
		"bad log format":     {"LOG_FORMAT": "xml"},
		"sample rate":        {"OTEL_SAMPLE_RATE": "1.5"},
		"insecure otel prod": {"APP_ENV": "production", "OTEL_ENABLED": "true"},
		"bad trusted proxy":  {"TRUSTED_PROXIES": "10.0.0.1,not-an-ip"},
		"metrics port":       {"METRICS_PORT": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("expected validation error for %v", env)
			}
		})
	}
}

func TestLoad_InMemorySQLiteAccepted(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("STORE_DSN", "file:cfgtest?mode=memory&cache=shared")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Fatalf("backend = %q", cfg.Store.Backend)
	}
}

func TestConfig_String(t *testing.T) {
	cfg, err := LoadWithDefaults()
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	s := cfg.String()
	for _, want := range []string{"0.0.0.0:50051", "0.0.0.0:8080", "localhost:50051", "memory"} {
		if !strings.Contains(s, want) {
			t.Fatalf("String() = %q, missing %q", s, want)
		}
	}
}
