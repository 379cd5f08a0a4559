// Package config loads the TOML configuration shared by the proxy and the chat
// client.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/studio/pkg/persist"
	"github.com/papercomputeco/studio/pkg/persona"
)

// Environment variables that override file values.
const (
	EnvEndpoint = "STUDIO_ENDPOINT"
	EnvModel    = "STUDIO_MODEL"
	EnvDebug    = "STUDIO_DEBUG"
)

const (
	// DefaultUpstreamURL is the completion API the proxy forwards to.
	DefaultUpstreamURL = "https://api.groq.com/openai/v1/chat/completions"

	// DefaultAPIKeyEnv names the environment variable holding the upstream credential.
	DefaultAPIKeyEnv = "GROQ_API_KEY"

	defaultDirName = ".studio"
	defaultDBName  = "studio.db"
)

// Config is the complete configuration file.
type Config struct {
	Debug   bool          `toml:"debug"`
	Proxy   ProxyConfig   `toml:"proxy"`
	Client  ClientConfig  `toml:"client"`
	Storage StorageConfig `toml:"storage"`
}

// ProxyConfig configures the proxy server.
type ProxyConfig struct {
	ListenAddr         string   `toml:"listen_addr"`
	UpstreamURL        string   `toml:"upstream_url"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	APIKeyEnv          string   `toml:"api_key_env"`
	DefaultModel       string   `toml:"default_model"`
	DefaultTemperature float64  `toml:"default_temperature"`
	TimeoutMS          int      `toml:"timeout_ms"`
}

// Timeout is TimeoutMS as a duration. It bounds one upstream request,
// streaming included.
func (c ProxyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ClientConfig configures the chat client.
type ClientConfig struct {
	Endpoint    string  `toml:"endpoint"`
	Model       string  `toml:"model"`
	Persona     string  `toml:"persona"`
	Temperature float64 `toml:"temperature"`
	TokenBudget int     `toml:"token_budget"`
	Stream      bool    `toml:"stream"`

	// EvictCommitted drops the oldest turns from the stored conversation so
	// that it stays within TokenBudget.
	EvictCommitted bool `toml:"evict_committed"`

	TimeoutMS   int    `toml:"timeout_ms"`
	MaxRetries  int    `toml:"max_retries"`
	RetryBaseMS int    `toml:"retry_base_ms"`
	Theme       string `toml:"theme"`
}

// Timeout is TimeoutMS as a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RetryBase is RetryBaseMS as a duration.
func (c ClientConfig) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMS) * time.Millisecond
}

// StorageConfig locates the persisted state.
type StorageConfig struct {
	// SQLitePath is the database file. Empty selects ~/.studio/studio.db and
	// ":memory:" keeps nothing between runs.
	SQLitePath string `toml:"sqlite_path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Proxy: ProxyConfig{
			ListenAddr:         ":8080",
			UpstreamURL:        DefaultUpstreamURL,
			APIKeyEnv:          DefaultAPIKeyEnv,
			DefaultModel:       persist.DefaultModel,
			DefaultTemperature: persist.DefaultTemperature,
			TimeoutMS:          300000,
		},
		Client: ClientConfig{
			Endpoint:       "http://localhost:8080/api/chat",
			Model:          persist.DefaultModel,
			Persona:        persona.Default,
			Temperature:    persist.DefaultTemperature,
			TokenBudget:    6000,
			Stream:         true,
			EvictCommitted: true,
			TimeoutMS:      60000,
			MaxRetries:     3,
			RetryBaseMS:    500,
			Theme:          persist.DefaultTheme,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyEnvOverrides applies the STUDIO_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvEndpoint); v != "" {
		c.Client.Endpoint = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Client.Model = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			c.Debug = debug
		}
	}
}

// ValidationError reports an invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks every section and joins all problems found.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Proxy.UpstreamURL == "" {
		fail("proxy.upstream_url", "must not be empty")
	}
	if c.Proxy.APIKeyEnv == "" {
		fail("proxy.api_key_env", "must not be empty")
	}
	if t := c.Proxy.DefaultTemperature; t < 0 || t > 2 {
		fail("proxy.default_temperature", "%v is outside [0, 2]", t)
	}
	if c.Proxy.TimeoutMS <= 0 {
		fail("proxy.timeout_ms", "must be positive")
	}

	if c.Client.Endpoint == "" {
		fail("client.endpoint", "must not be empty")
	}
	if c.Client.Model == "" {
		fail("client.model", "must not be empty")
	}
	if !persona.Valid(c.Client.Persona) {
		fail("client.persona", "unknown persona %q (known: %s)", c.Client.Persona, strings.Join(persona.Names(), ", "))
	}
	if t := c.Client.Temperature; t < 0 || t > 2 {
		fail("client.temperature", "%v is outside [0, 2]", t)
	}
	if c.Client.TokenBudget < 0 {
		fail("client.token_budget", "must not be negative")
	}
	if c.Client.TimeoutMS <= 0 {
		fail("client.timeout_ms", "must be positive")
	}
	if c.Client.MaxRetries < 0 {
		fail("client.max_retries", "must not be negative")
	}
	if c.Client.RetryBaseMS <= 0 {
		fail("client.retry_base_ms", "must be positive")
	}

	return errors.Join(errs...)
}

// ResolveSQLitePath returns the database path to open, creating the parent
// directory of the default location.
func (c *Config) ResolveSQLitePath() (string, error) {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, defaultDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.Join(dir, defaultDBName), nil
}
