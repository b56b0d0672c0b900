package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration. Both binaries load the same
// structure and read the sections they need.
type Config struct {
	App       AppConfig       `koanf:"app"`
	GRPC      ListenConfig    `koanf:"grpc"`
	HTTP      ListenConfig    `koanf:"http"`
	Proxy     ProxyConfig     `koanf:"proxy"`
	Store     StoreConfig     `koanf:"store"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type AppConfig struct {
	Name            string        `koanf:"name"`
	Environment     string        `koanf:"environment"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ListenConfig is a host/port pair a server binds to.
type ListenConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// ProxyConfig contains the HTTP adapter's upstream settings.
type ProxyConfig struct {
	GRPCTarget  string        `koanf:"grpc_target"` // gRPC server address (e.g. "localhost:50051")
	CallTimeout time.Duration `koanf:"call_timeout"`

	// TrustedProxies lists the IPs/CIDRs whose X-Forwarded-For is believed.
	// Empty means the peer address is always the client address.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// MetricsConfig is the standalone Prometheus listener of the gRPC server
// process. The HTTP proxy serves /metrics on its own router instead.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Path    string `koanf:"path"`
}

// Address returns host:port suitable for net.Listen.
func (m MetricsConfig) Address() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string `koanf:"backend"` // memory | sqlite
	DSN     string `koanf:"dsn"`     // sqlite only; must be an in-memory DSN
	Seed    bool   `koanf:"seed"`
}

type CORSConfig struct {
	AllowedOrigins   []string      `koanf:"allowed_origins"`
	AllowedMethods   []string      `koanf:"allowed_methods"`
	AllowedHeaders   []string      `koanf:"allowed_headers"`
	AllowCredentials bool          `koanf:"allow_credentials"`
	MaxAge           time.Duration `koanf:"max_age"`
}

type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | console
}

type OtelConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Load reads configuration in order of increasing precedence: built-in
// defaults, the YAML file at path (skipped when path is empty), then
// environment variables. A .env file in the working directory, when present,
// is loaded into the environment first without overriding variables that are
// already set. The result is validated.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadWithDefaults returns the built-in defaults only, ignoring files and the
// environment. Tests and local tooling use it for a predictable baseline.
func LoadWithDefaults() (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":             "userservice",
		"app.environment":      EnvDevelopment,
		"app.shutdown_timeout": "10s",

		"grpc.host": "0.0.0.0",
		"grpc.port": 50051,

		"http.host": "0.0.0.0",
		"http.port": 8080,

		"proxy.grpc_target":     "localhost:50051",
		"proxy.call_timeout":    "5s",
		"proxy.trusted_proxies": []string{},

		"store.backend": BackendMemory,
		"store.dsn":     "file:users?mode=memory&cache=shared",
		"store.seed":    true,

		"cors.allowed_origins": []string{
			"http://localhost:3000",
			"http://localhost:3001",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:3001",
		},
		"cors.allowed_methods": []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		"cors.allowed_headers": []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           "12h",

		"rate_limit.enabled":             true,
		"rate_limit.requests_per_second": 50.0,
		"rate_limit.burst":               100,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  1.0,
		"otel.service_name": "userservice",

		"metrics.enabled": true,
		"metrics.host":    "0.0.0.0",
		"metrics.port":    9090,
		"metrics.path":    "/metrics",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

var envKeyMap = map[string]string{
	"APP_ENV":                     "app.environment",
	"SHUTDOWN_TIMEOUT":            "app.shutdown_timeout",
	"GRPC_HOST":                   "grpc.host",
	"GRPC_PORT":                   "grpc.port",
	"PROXY_HOST":                  "http.host",
	"PROXY_PORT":                  "http.port",
	"GRPC_SERVER_URL":             "proxy.grpc_target",
	"GRPC_CALL_TIMEOUT":           "proxy.call_timeout",
	"TRUSTED_PROXIES":             "proxy.trusted_proxies",
	"STORE_BACKEND":               "store.backend",
	"STORE_DSN":                   "store.dsn",
	"STORE_SEED":                  "store.seed",
	"CORS_ALLOWED_ORIGINS":        "cors.allowed_origins",
	"RATE_LIMIT_ENABLED":          "rate_limit.enabled",
	"RATE_LIMIT_RPS":              "rate_limit.requests_per_second",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"METRICS_ENABLED":             "metrics.enabled",
	"METRICS_HOST":                "metrics.host",
	"METRICS_PORT":                "metrics.port",
}

// envListKeys are config keys whose environment value is a comma-separated list.
var envListKeys = map[string]bool{
	"cors.allowed_origins": true,
	"proxy.trusted_proxies": true,
}

// envValue maps known variables to config keys; anything else is dropped.
// List keys are split on commas with blanks removed.
func envValue(name, value string) (string, any) {
	key := envKeyMap[name]
	if key == "" || !envListKeys[key] {
		return key, value
	}
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

func (c *Config) validate() error {
	switch c.App.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("APP_ENV %q is not one of development, production, test", c.App.Environment)
	}

	if err := c.GRPC.validate("grpc"); err != nil {
		return err
	}
	if err := c.HTTP.validate("http"); err != nil {
		return err
	}

	if strings.TrimSpace(c.Proxy.GRPCTarget) == "" {
		return fmt.Errorf("GRPC_SERVER_URL is required")
	}
	if c.Proxy.CallTimeout <= 0 {
		return fmt.Errorf("proxy.call_timeout must be positive")
	}
	for _, p := range c.Proxy.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES entry %q is neither an IP nor a CIDR", p)
			}
		}
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Store.DSN != ":memory:" && !strings.Contains(c.Store.DSN, "mode=memory") {
			return fmt.Errorf("STORE_DSN %q must name an in-memory database", c.Store.DSN)
		}
	default:
		return fmt.Errorf("STORE_BACKEND %q is not one of memory, sqlite", c.Store.Backend)
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS wildcard '*' cannot be used with AllowCredentials")
			}
		}
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.requests_per_second and rate_limit.burst must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not one of json, console", c.Log.Format)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d out of range", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
		}
	}

	if c.Otel.SampleRate < 0 || c.Otel.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0, 1]")
	}
	if c.IsProduction() && c.Otel.Enabled && c.Otel.Insecure {
		return fmt.Errorf("OTEL_INSECURE must be false in production")
	}
	return nil
}

func (l ListenConfig) validate(section string) error {
	if l.Port < 1 || l.Port > 65535 {
		return fmt.Errorf("%s.port %d out of range", section, l.Port)
	}
	return nil
}

// Address returns host:port suitable for net.Listen.
func (l ListenConfig) Address() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// String returns a one-line summary for startup logs.
func (c *Config) String() string {
	return fmt.Sprintf("Config{env: %s, gRPC: %s, HTTP: %s, upstream: %s, store: %s, log: %s/%s, otel: %t}",
		c.App.Environment, c.GRPC.Address(), c.HTTP.Address(), c.Proxy.GRPCTarget,
		c.Store.Backend, c.Log.Level, c.Log.Format, c.Otel.Enabled)
}
