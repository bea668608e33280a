// Command mock-gateway runs a deterministic Portkey AI gateway for
// local development and adapter testing. It speaks the gateway's
// OpenAI-compatible surface (POST /v1/chat/completions, POST
// /v1/completions, GET /v1/models), honors the x-portkey-* routing
// headers, and returns predictable responses based on request content.
//
// The routed provider, strategy mode, and trace ID are echoed back in
// response headers so tests can assert on the routing that was applied.
// Targets that request caching get real HIT and MISS answers via the
// x-portkey-cache-status header.
//
// Configuration layers flags over the standard config file and
// PORTKEY_MOCK_* environment variables:
//
//	--addr        Listen address (default: :8787)
//	--api-key     Require this value in the x-portkey-api-key header
//	--latency     Artificial delay before each response
//	--fail-rate   Fraction of requests answered with an injected 500
//	--rate-limit  Requests per minute per API key, 0 disables
//	--cache-size  Max cached responses (default: 256)
//	--config      Path to a portkey.yaml config file
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noble-varghese/langchain/pkg/config"
	"github.com/noble-varghese/langchain/pkg/debug"
	"github.com/noble-varghese/langchain/pkg/observability"
)

const (
	headerAPIKey      = "x-portkey-api-key"
	headerConfig      = "x-portkey-config"
	headerCacheStatus = "x-portkey-cache-status"

	defaultMockModel = "mock-gpt"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mock gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a portkey.yaml config file")
		addr       = flag.String("addr", "", "listen address, e.g. :8787")
		apiKey     = flag.String("api-key", "", "require this key in the x-portkey-api-key header")
		latency    = flag.Duration("latency", 0, "artificial delay before each response")
		failRate   = flag.Float64("fail-rate", 0, "fraction of requests answered with an injected 500")
		rateLimit  = flag.Int("rate-limit", 0, "requests per minute per API key, 0 disables")
		cacheSize  = flag.Int("cache-size", 0, "max cached responses, 0 means unlimited")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags win over file and environment values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Mock.Addr = *addr
		case "api-key":
			cfg.Mock.APIKey = *apiKey
		case "latency":
			cfg.Mock.Latency = *latency
		case "fail-rate":
			cfg.Mock.FailRate = *failRate
		case "rate-limit":
			cfg.Mock.RateLimit = *rateLimit
		case "cache-size":
			cfg.Mock.CacheSize = *cacheSize
		}
	})
	if cfg.Mock.FailRate < 0 || cfg.Mock.FailRate > 1 {
		return fmt.Errorf("fail-rate must be between 0 and 1, got %v", cfg.Mock.FailRate)
	}
	if cfg.Mock.RateLimit < 0 {
		return fmt.Errorf("rate-limit must be >= 0, got %d", cfg.Mock.RateLimit)
	}
	if cfg.Mock.CacheSize < 0 {
		return fmt.Errorf("cache-size must be >= 0, got %d", cfg.Mock.CacheSize)
	}

	debug.Init(cfg.Log.Debug, cfg.Log.Level, cfg.Log.Format)

	gw := &gateway{
		apiKey:   cfg.Mock.APIKey,
		latency:  cfg.Mock.Latency,
		failRate: cfg.Mock.FailRate,
		limiter:  newRateLimiter(cfg.Mock.RateLimit),
		cache:    newResponseCache(cfg.Mock.CacheSize),
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat/completions", gw.handleChatCompletions)
	api.HandleFunc("POST /v1/completions", gw.handleCompletions)
	api.HandleFunc("GET /v1/models", gw.handleModels)

	mux := http.NewServeMux()
	mux.Handle("/v1/", gw.middleware(api))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if cfg.Mock.Metrics.Enabled {
		mux.Handle("GET "+cfg.Mock.Metrics.Path, promhttp.Handler())
	}

	chain := observability.Chain(
		observability.Recovery(),
		observability.RequestID(),
		observability.Logging(slog.Default()),
		observability.MetricsMiddleware,
	)

	srv := &http.Server{
		Addr:    cfg.Mock.Addr,
		Handler: chain(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mock gateway starting",
			"addr", cfg.Mock.Addr,
			"auth", gw.apiKey != "",
			"latency", gw.latency,
			"fail_rate", gw.failRate,
			"rate_limit", cfg.Mock.RateLimit)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("mock gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// gateway holds the behavior knobs shared by all handlers.
type gateway struct {
	apiKey   string
	latency  time.Duration
	failRate float64
	limiter  *rateLimiter
	cache    *responseCache
}

// middleware applies key validation, rate limiting, failure injection,
// and artificial latency to the /v1 routes.
func (g *gateway) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.apiKey != "" && r.Header.Get(headerAPIKey) != g.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid portkey api key", "authentication_error")
			return
		}
		if retryAfter, ok := g.limiter.allow(clientKey(r)); !ok {
			observability.RateLimitedTotal.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)+1))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit_error")
			return
		}
		if g.failRate > 0 && rand.Float64() < g.failRate {
			observability.FailuresInjectedTotal.WithLabelValues(r.URL.Path).Inc()
			writeError(w, http.StatusInternalServerError, "injected gateway failure", "internal_error")
			return
		}
		if g.latency > 0 {
			time.Sleep(g.latency)
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": errType},
	})
}

// --- Routing headers ---

type routingConfig struct {
	Strategy struct {
		Mode string `json:"mode"`
	} `json:"strategy"`
	Targets []routingTarget `json:"targets"`
}

type routingTarget struct {
	Provider   string `json:"provider"`
	VirtualKey string `json:"virtual_key"`
	Cache      struct {
		Mode string `json:"mode"`
	} `json:"cache"`
	OverrideParams struct {
		Model string `json:"model"`
	} `json:"override_params"`
}

// route is the routing decision derived from the x-portkey-config header.
type route struct {
	mode      string
	provider  string
	model     string // model override from the target, empty when none
	cacheMode string // "simple" or "semantic", empty when caching is off
}

// parseRouting extracts the strategy mode and the first target's
// provider, model override, and cache mode from the x-portkey-config
// header. The mock always routes to the first target.
func parseRouting(r *http.Request) route {
	rt := route{mode: "single", provider: "openai"}
	raw := r.Header.Get(headerConfig)
	if raw == "" {
		return rt
	}

	var rc routingConfig
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		slog.Warn("ignoring malformed x-portkey-config", "error", err)
		return rt
	}
	if rc.Strategy.Mode != "" {
		rt.mode = rc.Strategy.Mode
	}
	if len(rc.Targets) > 0 {
		t := rc.Targets[0]
		switch {
		case t.Provider != "":
			rt.provider = t.Provider
		case t.VirtualKey != "":
			rt.provider = "virtual:" + t.VirtualKey
		}
		rt.model = t.OverrideParams.Model
		rt.cacheMode = t.Cache.Mode
	}
	return rt
}

func echoRouting(w http.ResponseWriter, rt route) {
	w.Header().Set("x-portkey-provider", rt.provider)
	w.Header().Set("x-portkey-mode", rt.mode)
}

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []any         `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type completionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	Message      chatMsg `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatMsg struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function funcCall `json:"function"`
}

type funcCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   chatUsage          `json:"usage"`
}

type completionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// --- Chat completions ---

func (g *gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body", "invalid_request_error")
		return
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error")
		return
	}

	rt := parseRouting(r)

	// A model override on the routed target replaces the request model,
	// matching how the gateway applies override_params.
	model := req.Model
	if rt.model != "" {
		model = rt.model
	}
	if model == "" {
		model = defaultMockModel
	}

	echoRouting(w, rt)

	// A cache hit answers without touching the routed target, so hits
	// count no target request and no tokens.
	var key string
	if rt.cacheMode != "" && !req.Stream {
		key = cacheKey(rt.cacheMode, model, body, lastUserMessage(&req))
		if cached, ok := g.cache.get(key); ok {
			observability.CacheTotal.WithLabelValues("hit").Inc()
			w.Header().Set(headerCacheStatus, "HIT")
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
		observability.CacheTotal.WithLabelValues("miss").Inc()
		w.Header().Set(headerCacheStatus, "MISS")
	}

	observability.TargetRequestsTotal.WithLabelValues(rt.provider, rt.mode).Inc()
	debug.Log("gateway", "chat completion",
		"model", model, "provider", rt.provider, "mode", rt.mode,
		"stream", req.Stream, "messages", len(req.Messages))

	if req.Stream {
		g.streamChat(w, &req, model)
		return
	}

	resp := classifyChat(&req)
	resp.Model = model
	recordTokens(model, resp.Usage)

	data, _ := json.Marshal(resp)
	if key != "" {
		g.cache.put(key, data)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// classifyChat picks a canned response based on request content.
func classifyChat(req *chatRequest) chatResponse {
	if len(req.Tools) > 0 {
		return toolCallResponse()
	}
	if hasImageContent(req) {
		return makeTextResponse("I can see the image you shared. It appears to be a small red icon or symbol.")
	}
	if hasSystemPrompt(req) {
		return makeTextResponse("Ahoy there, matey! Welcome aboard!")
	}
	return makeTextResponse(textFor(lastUserMessage(req)))
}

func textFor(prompt string) string {
	if strings.Contains(strings.ToLower(prompt), "count from 1 to 5") {
		return "1, 2, 3, 4, 5"
	}
	return "Hello, nice day!"
}

func makeTextResponse(text string) chatResponse {
	return chatResponse{
		ID:     "chatcmpl-mock-text",
		Object: "chat.completion",
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMsg{
					Role:    "assistant",
					Content: &text,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func toolCallResponse() chatResponse {
	return chatResponse{
		ID:     "chatcmpl-mock-tool",
		Object: "chat.completion",
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMsg{
					Role: "assistant",
					ToolCalls: []toolCall{
						{
							ID:   "call_mock_1",
							Type: "function",
							Function: funcCall{
								Name:      "get_weather",
								Arguments: `{"location":"San Francisco","unit":"celsius"}`,
							},
						},
					},
				},
				FinishReason: "tool_calls",
			},
		},
		Usage: chatUsage{PromptTokens: 20, CompletionTokens: 15, TotalTokens: 35},
	}
}

// --- Chat streaming ---

func (g *gateway) streamChat(w http.ResponseWriter, req *chatRequest, model string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if len(req.Tools) > 0 {
		g.streamToolCall(w, flusher, model)
		return
	}

	tokens := []string{"Hello", ", ", "nice", " ", "day", "!"}
	if strings.Contains(strings.ToLower(lastUserMessage(req)), "count from 1 to 5") {
		tokens = []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}

	writeChatChunk(w, model, map[string]any{"role": "assistant"}, nil)
	flusher.Flush()

	for _, token := range tokens {
		writeChatChunk(w, model, map[string]any{"content": token}, nil)
		flusher.Flush()
	}

	writeChatFinish(w, model, "stop", len(tokens))
	recordTokens(model, chatUsage{PromptTokens: 10, CompletionTokens: len(tokens)})
	flusher.Flush()

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// streamToolCall emits a tool call in fragments the way real providers
// do: id and name first, then the arguments split across deltas.
func (g *gateway) streamToolCall(w http.ResponseWriter, flusher http.Flusher, model string) {
	fragments := []map[string]any{
		{
			"index": 0,
			"id":    "call_mock_1",
			"type":  "function",
			"function": map[string]any{
				"name":      "get_weather",
				"arguments": "",
			},
		},
		{
			"index":    0,
			"function": map[string]any{"arguments": `{"location":"San `},
		},
		{
			"index":    0,
			"function": map[string]any{"arguments": `Francisco"}`},
		},
	}

	writeChatChunk(w, model, map[string]any{"role": "assistant"}, nil)
	flusher.Flush()

	for _, frag := range fragments {
		writeChatChunk(w, model, map[string]any{"tool_calls": []any{frag}}, nil)
		flusher.Flush()
	}

	writeChatFinish(w, model, "tool_calls", 15)
	recordTokens(model, chatUsage{PromptTokens: 20, CompletionTokens: 15})
	flusher.Flush()

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeChatChunk(w http.ResponseWriter, model string, delta map[string]any, finishReason any) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finishReason,
			},
		},
	}

	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeChatFinish(w http.ResponseWriter, model, reason string, tokenCount int) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock-stream",
		"object": "chat.completion.chunk",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         map[string]any{},
				"finish_reason": reason,
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     10,
			"completion_tokens": tokenCount,
			"total_tokens":      10 + tokenCount,
		},
	}

	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// --- Text completions ---

func (g *gateway) handleCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body", "invalid_request_error")
		return
	}
	var req completionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request_error")
		return
	}

	rt := parseRouting(r)

	model := req.Model
	if rt.model != "" {
		model = rt.model
	}
	if model == "" {
		model = defaultMockModel
	}

	echoRouting(w, rt)

	var key string
	if rt.cacheMode != "" && !req.Stream {
		key = cacheKey(rt.cacheMode, model, body, req.Prompt)
		if cached, ok := g.cache.get(key); ok {
			observability.CacheTotal.WithLabelValues("hit").Inc()
			w.Header().Set(headerCacheStatus, "HIT")
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
		observability.CacheTotal.WithLabelValues("miss").Inc()
		w.Header().Set(headerCacheStatus, "MISS")
	}

	observability.TargetRequestsTotal.WithLabelValues(rt.provider, rt.mode).Inc()
	debug.Log("gateway", "text completion",
		"model", model, "provider", rt.provider, "mode", rt.mode, "stream", req.Stream)

	if req.Stream {
		g.streamCompletion(w, &req, model)
		return
	}

	text := textFor(req.Prompt)
	resp := completionResponse{
		ID:     "cmpl-mock-text",
		Object: "text_completion",
		Model:  model,
		Choices: []completionChoice{
			{Index: 0, Text: text, FinishReason: "stop"},
		},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	recordTokens(model, resp.Usage)

	data, _ := json.Marshal(resp)
	if key != "" {
		g.cache.put(key, data)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (g *gateway) streamCompletion(w http.ResponseWriter, req *completionRequest, model string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	tokens := []string{"Hello", ", ", "nice", " ", "day", "!"}
	if strings.Contains(strings.ToLower(req.Prompt), "count from 1 to 5") {
		tokens = []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}

	for _, token := range tokens {
		writeCompletionChunk(w, model, token, nil)
		flusher.Flush()
	}

	writeCompletionChunk(w, model, "", "stop")
	recordTokens(model, chatUsage{PromptTokens: 10, CompletionTokens: len(tokens)})
	flusher.Flush()

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeCompletionChunk(w http.ResponseWriter, model, text string, finishReason any) {
	chunk := map[string]any{
		"id":     "cmpl-mock-stream",
		"object": "text_completion",
		"model":  model,
		"choices": []any{
			map[string]any{
				"index":         0,
				"text":          text,
				"finish_reason": finishReason,
			},
		},
	}

	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// --- Models endpoint ---

func (g *gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-gpt", "object": "model", "owned_by": "portkey-mock"},
			{"id": "mock-claude", "object": "model", "owned_by": "portkey-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

func recordTokens(model string, usage chatUsage) {
	observability.TokensTotal.WithLabelValues(model, "input").Add(float64(usage.PromptTokens))
	observability.TokensTotal.WithLabelValues(model, "output").Add(float64(usage.CompletionTokens))
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		switch v := req.Messages[i].Content.(type) {
		case string:
			return v
		case []any:
			// Multimodal content array: find the first text part.
			for _, part := range v {
				if m, ok := part.(map[string]any); ok {
					if t, ok := m["type"].(string); ok && t == "text" {
						if text, ok := m["text"].(string); ok {
							return text
						}
					}
				}
			}
		}
	}
	return ""
}

func hasImageContent(req *chatRequest) bool {
	for _, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		parts, ok := msg.Content.([]any)
		if !ok {
			continue
		}
		for _, part := range parts {
			if m, ok := part.(map[string]any); ok {
				if t, ok := m["type"].(string); ok && t == "image_url" {
					return true
				}
			}
		}
	}
	return false
}

func hasSystemPrompt(req *chatRequest) bool {
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			return true
		}
	}
	return false
}
