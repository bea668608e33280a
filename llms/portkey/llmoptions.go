package portkey

// Mode selects the gateway routing strategy across the registered
// targets.
type Mode string

const (
	// ModeSingle routes every request to the first target.
	ModeSingle Mode = "single"

	// ModeFallback tries targets in order until one succeeds.
	ModeFallback Mode = "fallback"

	// ModeLoadbalance distributes requests across targets according to
	// their weights.
	ModeLoadbalance Mode = "loadbalance"
)

// IsValid reports whether m is a known routing mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSingle, ModeFallback, ModeLoadbalance:
		return true
	}
	return false
}

// LLMOptions describes one gateway target: an upstream provider plus the
// parameter overrides, retry budget, and cache policy the gateway should
// apply when routing to it. Register targets with AddLLMs or WithLLMs.
type LLMOptions struct {
	// Provider is the upstream provider name (e.g. "openai", "anthropic").
	Provider string `json:"provider,omitempty"`

	// Model overrides the model for this target.
	Model string `json:"model,omitempty"`

	// VirtualKey references a provider key stored in the Portkey vault.
	VirtualKey string `json:"virtual_key,omitempty"`

	// APIKey is a raw provider key, used instead of a virtual key.
	APIKey string `json:"api_key,omitempty"`

	// Weight sets the share of traffic for this target in loadbalance
	// mode. Targets with zero weight receive no traffic.
	Weight float64 `json:"weight,omitempty"`

	// MaxRetries is the gateway-side retry budget for this target.
	MaxRetries int `json:"max_retries,omitempty"`

	// TraceID correlates requests in the Portkey dashboard. The first
	// target with a trace ID wins when several are set.
	TraceID string `json:"trace_id,omitempty"`

	// Cache enables semantic response caching for this target.
	Cache bool `json:"cache,omitempty"`

	// CacheStatus selects the cache mode explicitly: "simple" or
	// "semantic". Takes precedence over Cache.
	CacheStatus string `json:"cache_status,omitempty"`

	// Metadata is attached to requests for filtering in the dashboard.
	// Entries from all targets are merged; earlier targets win on
	// conflicting keys.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Temperature overrides the sampling temperature for this target.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens caps the completion length for this target.
	MaxTokens int `json:"max_tokens,omitempty"`

	// TopP overrides nucleus sampling for this target.
	TopP *float64 `json:"top_p,omitempty"`

	// TopK overrides top-k sampling for this target.
	TopK int `json:"top_k,omitempty"`

	// StopSequences stop generation when emitted by the model.
	StopSequences []string `json:"stop,omitempty"`
}

// Float64 returns a pointer to v, for the optional sampling fields.
func Float64(v float64) *float64 {
	return &v
}
