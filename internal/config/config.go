// Package config loads and validates the voicegate configuration file.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the voicegate service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Backend  BackendConfig  `yaml:"backend"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// AuthConfig configures webhook authentication.
type AuthConfig struct {
	// WebhookToken is the static bearer token the voice engine sends.
	WebhookToken string `yaml:"webhook_token"`

	// WebhookSecret, when set, enables HMAC-SHA256 signature verification
	// over the raw request body.
	WebhookSecret string `yaml:"webhook_secret"`
}

// BackendConfig configures the customer-data API client.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// Timeout is the overall per-request deadline.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int `yaml:"max_retries"`

	// RetryInitialDelay is the backoff delay after the first failure.
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`

	// SearchCacheTTL bounds how long customer search responses are reused.
	// Zero disables the cache.
	SearchCacheTTL time.Duration `yaml:"search_cache_ttl"`
}

// DispatchConfig configures the function-call pipeline.
type DispatchConfig struct {
	// Budget is the end-to-end deadline for one function-call event,
	// covering context resolution and every backend attempt including
	// retries. Zero derives it from the backend timeout and retry count.
	Budget time.Duration `yaml:"budget"`
}

// SessionConfig configures the call session context store.
type SessionConfig struct {
	// Store selects the backing implementation: "memory" or "postgres".
	Store string `yaml:"store"`

	// TTL is the idle window after which an untouched session is reclaimed.
	TTL time.Duration `yaml:"ttl"`

	// ReapInterval is how often the reaper sweeps for expired sessions.
	ReapInterval time.Duration `yaml:"reap_interval"`

	// PostgresDSN is the connection string when Store is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Store backend names.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.Backend.MaxRetries == 0 {
		c.Backend.MaxRetries = 2
	}
	if c.Backend.RetryInitialDelay == 0 {
		c.Backend.RetryInitialDelay = 500 * time.Millisecond
	}
	if c.Backend.SearchCacheTTL == 0 {
		c.Backend.SearchCacheTTL = time.Minute
	}
	if c.Dispatch.Budget == 0 {
		// Room for every backend attempt plus backoff sleeps, so a
		// first-attempt timeout still leaves the retries runnable.
		c.Dispatch.Budget = c.Backend.Timeout*time.Duration(c.Backend.MaxRetries+1) + 5*time.Second
	}
	if c.Session.Store == "" {
		c.Session.Store = StoreMemory
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = time.Hour
	}
	if c.Session.ReapInterval == 0 {
		c.Session.ReapInterval = time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports configuration problems that prevent startup.
func (c *Config) Validate() error {
	var issues []string
	if c.Backend.BaseURL == "" {
		issues = append(issues, "backend.base_url is required")
	}
	if c.Backend.APIKey == "" {
		issues = append(issues, "backend.api_key is required")
	}
	if c.Auth.WebhookToken == "" {
		issues = append(issues, "auth.webhook_token is required")
	}
	switch c.Session.Store {
	case StoreMemory:
	case StorePostgres:
		if c.Session.PostgresDSN == "" {
			issues = append(issues, "session.postgres_dsn is required when session.store is postgres")
		}
	default:
		issues = append(issues, fmt.Sprintf("session.store must be %q or %q, got %q", StoreMemory, StorePostgres, c.Session.Store))
	}
	if c.Dispatch.Budget > 0 && c.Dispatch.Budget < c.Backend.Timeout {
		issues = append(issues, "dispatch.budget must be at least backend.timeout")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(issues, "; "))
	}
	return nil
}
