// Package config provides unified configuration for the Portkey chat
// client and the mock gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (PORTKEY_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the Portkey tooling.
type Config struct {
	Gateway GatewayConfig  `yaml:"gateway"`
	Targets []TargetConfig `yaml:"targets"`
	Chat    ChatConfig     `yaml:"chat"`
	Log     LogConfig      `yaml:"log"`
	Mock    MockConfig     `yaml:"mock"`
}

// GatewayConfig holds connection settings for the Portkey gateway.
type GatewayConfig struct {
	BaseURL    string        `yaml:"base_url"`     // default: https://api.portkey.ai
	APIKey     string        `yaml:"api_key"`      // required
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Mode       string        `yaml:"mode"`         // "single", "fallback", or "loadbalance", default: "single"
	Timeout    time.Duration `yaml:"timeout"`      // default: 120s
}

// TargetConfig describes one upstream LLM behind the gateway. The
// gateway uses the list to build its routing config: in fallback mode
// order matters, in loadbalance mode the weights do.
type TargetConfig struct {
	Provider   string `yaml:"provider"`     // e.g. "openai", "anthropic"
	VirtualKey string `yaml:"virtual_key"`  // Portkey virtual key for the provider
	APIKey     string `yaml:"api_key"`      // raw provider key, alternative to virtual_key
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key

	Model      string  `yaml:"model"`       // model override for this target
	Weight     float64 `yaml:"weight"`      // loadbalance weight
	MaxRetries int     `yaml:"max_retries"` // gateway-side retry attempts
	Cache      bool    `yaml:"cache"`       // enable semantic caching
	CacheMode  string  `yaml:"cache_mode"`  // "simple" or "semantic", overrides cache

	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TopP        *float64 `yaml:"top_p"`
	TopK        int      `yaml:"top_k"`
	Stop        []string `yaml:"stop"`

	TraceID  string         `yaml:"trace_id"`
	Metadata map[string]any `yaml:"metadata"`
}

// ChatConfig holds settings for the interactive chat client.
type ChatConfig struct {
	Model       string   `yaml:"model"`       // default model sent to the gateway
	System      string   `yaml:"system"`      // system prompt prepended to every conversation
	Markdown    bool     `yaml:"markdown"`    // render responses as markdown, default: true
	Temperature *float64 `yaml:"temperature"` // sampling temperature for chat turns
	MaxTokens   int      `yaml:"max_tokens"`  // completion budget per turn
}

// LogConfig holds logging settings shared by all commands.
type LogConfig struct {
	Level  string `yaml:"level"`  // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// MockConfig holds settings for the mock gateway used in development
// and integration testing.
type MockConfig struct {
	Addr      string        `yaml:"addr"`       // default: ":8787"
	APIKey    string        `yaml:"api_key"`    // key the mock expects, empty disables the check
	Latency   time.Duration `yaml:"latency"`    // artificial delay per request
	FailRate  float64       `yaml:"fail_rate"`  // fraction of requests answered with HTTP 500
	RateLimit int           `yaml:"rate_limit"` // requests per minute per API key, 0 disables
	CacheSize int           `yaml:"cache_size"` // max cached responses, 0 means unlimited
	Metrics   MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			BaseURL: "https://api.portkey.ai",
			Mode:    "single",
			Timeout: 120 * time.Second,
		},
		Chat: ChatConfig{
			Markdown: true,
		},
		Log: LogConfig{
			Format: "text",
		},
		Mock: MockConfig{
			Addr:      ":8787",
			CacheSize: 256,
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
