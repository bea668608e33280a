package integration

import (
	"encoding/json"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/noble-varghese/langchain/llms/portkey"
)

// wireConfig mirrors the gateway routing config the adapter sends in
// the x-portkey-config header. Targets stay untyped so tests can
// assert on the exact JSON shape.
type wireConfig struct {
	Strategy struct {
		Mode string `json:"mode"`
	} `json:"strategy"`
	Targets []map[string]any `json:"targets"`
}

func decodeConfigHeader(t *testing.T, req recordedRequest) wireConfig {
	t.Helper()
	raw := req.Header.Get("x-portkey-config")
	if raw == "" {
		t.Fatal("x-portkey-config header not set")
	}
	var wc wireConfig
	if err := json.Unmarshal([]byte(raw), &wc); err != nil {
		t.Fatalf("decoding x-portkey-config: %v", err)
	}
	return wc
}

func TestRouting_SingleMode(t *testing.T) {
	llm := newAdapter(t)
	generate(t, llm, "Hello")

	wc := decodeConfigHeader(t, testEnv.LastRequest(t))
	if wc.Strategy.Mode != "single" {
		t.Errorf("expected mode %q, got %q", "single", wc.Strategy.Mode)
	}
	if len(wc.Targets) != 1 {
		t.Fatalf("expected 1 target, got %d", len(wc.Targets))
	}
	if got := wc.Targets[0]["provider"]; got != "openai" {
		t.Errorf("expected provider %q, got %v", "openai", got)
	}
	if _, ok := wc.Targets[0]["virtual_key"]; ok {
		t.Error("virtual_key should be omitted when unset")
	}
}

func TestRouting_FallbackTargets(t *testing.T) {
	llm := newAdapterWithTargets(t,
		portkey.WithMode(portkey.ModeFallback),
		portkey.WithLLMs(
			portkey.LLMOptions{
				Provider:   "openai",
				APIKey:     "sk-openai",
				Model:      "gpt-4o",
				MaxRetries: 3,
			},
			portkey.LLMOptions{
				VirtualKey:  "anthropic-prod",
				CacheStatus: "semantic",
			},
		),
	)
	generate(t, llm, "Hello")

	wc := decodeConfigHeader(t, testEnv.LastRequest(t))
	if wc.Strategy.Mode != "fallback" {
		t.Errorf("expected mode %q, got %q", "fallback", wc.Strategy.Mode)
	}
	if len(wc.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(wc.Targets))
	}

	first := wc.Targets[0]
	if got := first["provider"]; got != "openai" {
		t.Errorf("expected provider %q, got %v", "openai", got)
	}
	if got := first["api_key"]; got != "sk-openai" {
		t.Errorf("expected api_key %q, got %v", "sk-openai", got)
	}
	retry, ok := first["retry"].(map[string]any)
	if !ok || retry["attempts"] != float64(3) {
		t.Errorf("expected retry attempts 3, got %v", first["retry"])
	}
	op, ok := first["override_params"].(map[string]any)
	if !ok || op["model"] != "gpt-4o" {
		t.Errorf("expected override model gpt-4o, got %v", first["override_params"])
	}

	second := wc.Targets[1]
	if got := second["virtual_key"]; got != "anthropic-prod" {
		t.Errorf("expected virtual_key %q, got %v", "anthropic-prod", got)
	}
	cache, ok := second["cache"].(map[string]any)
	if !ok || cache["mode"] != "semantic" {
		t.Errorf("expected semantic cache, got %v", second["cache"])
	}
}

func TestRouting_LoadbalanceWeights(t *testing.T) {
	llm := newAdapterWithTargets(t,
		portkey.WithMode(portkey.ModeLoadbalance),
		portkey.WithLLMs(
			portkey.LLMOptions{Provider: "openai", Weight: 0.7},
			portkey.LLMOptions{Provider: "anthropic", Weight: 0.3},
		),
	)
	generate(t, llm, "Hello")

	wc := decodeConfigHeader(t, testEnv.LastRequest(t))
	if wc.Strategy.Mode != "loadbalance" {
		t.Errorf("expected mode %q, got %q", "loadbalance", wc.Strategy.Mode)
	}
	if len(wc.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(wc.Targets))
	}
	if got := wc.Targets[0]["weight"]; got != 0.7 {
		t.Errorf("expected weight 0.7, got %v", got)
	}
	if got := wc.Targets[1]["weight"]; got != 0.3 {
		t.Errorf("expected weight 0.3, got %v", got)
	}
}

func TestRouting_OverrideParams(t *testing.T) {
	llm := newAdapterWithTargets(t,
		portkey.WithLLMs(portkey.LLMOptions{
			Provider:      "openai",
			Temperature:   portkey.Float64(0.3),
			MaxTokens:     512,
			TopK:          40,
			StopSequences: []string{"END"},
		}),
	)
	generate(t, llm, "Hello")

	wc := decodeConfigHeader(t, testEnv.LastRequest(t))
	op, ok := wc.Targets[0]["override_params"].(map[string]any)
	if !ok {
		t.Fatalf("override_params missing: %v", wc.Targets[0])
	}
	if op["temperature"] != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", op["temperature"])
	}
	if op["max_tokens"] != float64(512) {
		t.Errorf("expected max_tokens 512, got %v", op["max_tokens"])
	}
	if op["top_k"] != float64(40) {
		t.Errorf("expected top_k 40, got %v", op["top_k"])
	}
	stop, ok := op["stop"].([]any)
	if !ok || len(stop) != 1 || stop[0] != "END" {
		t.Errorf("expected stop [END], got %v", op["stop"])
	}
}

func TestRouting_TraceAndMetadataHeaders(t *testing.T) {
	llm := newAdapterWithTargets(t,
		portkey.WithLLMs(portkey.LLMOptions{
			Provider: "openai",
			TraceID:  "trace-abc",
			Metadata: map[string]any{"team": "search"},
		}),
	)
	generate(t, llm, "Hello",
		llms.WithMetadata(map[string]any{"request": "42"}))

	req := testEnv.LastRequest(t)
	if got := req.Header.Get("x-portkey-trace-id"); got != "trace-abc" {
		t.Errorf("expected trace header %q, got %q", "trace-abc", got)
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(req.Header.Get("x-portkey-metadata")), &meta); err != nil {
		t.Fatalf("decoding x-portkey-metadata: %v", err)
	}
	if meta["team"] != "search" {
		t.Errorf("expected target metadata team=search, got %v", meta["team"])
	}
	if meta["request"] != "42" {
		t.Errorf("expected call metadata request=42, got %v", meta["request"])
	}
}

func TestRouting_NoTraceWithoutConfig(t *testing.T) {
	llm := newAdapter(t)
	generate(t, llm, "Hello")

	req := testEnv.LastRequest(t)
	if got := req.Header.Get("x-portkey-trace-id"); got != "" {
		t.Errorf("expected no trace header, got %q", got)
	}
	if got := req.Header.Get("x-portkey-metadata"); got != "" {
		t.Errorf("expected no metadata header, got %q", got)
	}
}
