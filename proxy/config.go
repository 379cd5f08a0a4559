package proxy

import "time"

// Config is the proxy server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the full chat completions endpoint requests are forwarded to.
	UpstreamURL string

	// AllowedOrigins lists the browser origins that may call the proxy. An entry
	// of "*" allows any origin. Requests without an Origin header always pass.
	AllowedOrigins []string

	// APIKey is the upstream credential. When empty it is read from the
	// environment variable named by APIKeyEnv on every request.
	APIKey    string
	APIKeyEnv string

	// Defaults applied to fields missing from the request body.
	DefaultModel       string
	DefaultTemperature float64

	// Timeout bounds a single upstream request, streaming included.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "GROQ_API_KEY"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "llama-3.1-8b-instant"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	return c
}
