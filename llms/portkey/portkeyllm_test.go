package portkey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"

	"github.com/noble-varghese/langchain/llms/portkey/internal/portkeyclient"
)

func chatResponse(content string) portkeyclient.ChatCompletionResponse {
	return portkeyclient.ChatCompletionResponse{
		ID:    "chatcmpl-1",
		Model: "gpt-4o",
		Choices: []portkeyclient.ChatChoice{
			{
				Index: 0,
				Message: portkeyclient.ChatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: &portkeyclient.Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv(apiKeyEnvVarName, "")

	_, err := New()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNew_APIKeyFromEnv(t *testing.T) {
	t.Setenv(apiKeyEnvVarName, "pk-env-123")

	llm, err := New()
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()
}

func TestNew_InvalidMode(t *testing.T) {
	_, err := New(WithAPIKey("pk-test"), WithMode("weighted"))
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestLLM_AddLLMs_AdoptsFirstTargetModel(t *testing.T) {
	llm, err := New(WithAPIKey("pk-test"))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	got := llm.AddLLMs(
		LLMOptions{Provider: "openai", VirtualKey: "vk-1"},
		LLMOptions{Provider: "anthropic", VirtualKey: "vk-2", Model: "claude-sonnet-4-20250514"},
	)
	if got != llm {
		t.Error("expected AddLLMs to return the adapter for chaining")
	}
	if llm.model != "claude-sonnet-4-20250514" {
		t.Errorf("expected adopted model %q, got %q", "claude-sonnet-4-20250514", llm.model)
	}
	if len(llm.targets) != 2 {
		t.Errorf("expected 2 targets, got %d", len(llm.targets))
	}

	// An explicitly set model is never overwritten by later targets.
	llm.AddLLMs(LLMOptions{Provider: "openai", Model: "gpt-4o"})
	if llm.model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model to stay %q, got %q", "claude-sonnet-4-20250514", llm.model)
	}
}

func TestLLM_GenerateContent_NoTargets(t *testing.T) {
	llm, err := New(WithAPIKey("pk-test"))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	_, err = llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "Hello"),
	})
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
}

func TestLLM_GenerateContent_TextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		if key := r.Header.Get("x-portkey-api-key"); key != "pk-test" {
			t.Errorf("expected x-portkey-api-key %q, got %q", "pk-test", key)
		}

		var cfg portkeyclient.GatewayConfig
		if err := json.Unmarshal([]byte(r.Header.Get("x-portkey-config")), &cfg); err != nil {
			t.Errorf("failed to parse x-portkey-config: %v", err)
		}
		if cfg.Strategy.Mode != "single" {
			t.Errorf("expected strategy mode %q, got %q", "single", cfg.Strategy.Mode)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0].VirtualKey != "open-ai-key-1234" {
			t.Errorf("unexpected targets in config header: %+v", cfg.Targets)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("Hello from the gateway!"))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", VirtualKey: "open-ai-key-1234", Model: "gpt-4o"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	resp, err := llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "You are concise."),
		llms.TextParts(llms.ChatMessageTypeHuman, "Hello"),
	})
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}

	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Content != "Hello from the gateway!" {
		t.Errorf("expected content %q, got %q", "Hello from the gateway!", choice.Content)
	}
	if choice.StopReason != "stop" {
		t.Errorf("expected stop reason %q, got %q", "stop", choice.StopReason)
	}
	if got := choice.GenerationInfo["TotalTokens"]; got != 15 {
		t.Errorf("expected TotalTokens 15, got %v", got)
	}
}

func TestLLM_GenerateContent_FallbackConfigHeader(t *testing.T) {
	var body portkeyclient.ChatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cfg portkeyclient.GatewayConfig
		if err := json.Unmarshal([]byte(r.Header.Get("x-portkey-config")), &cfg); err != nil {
			t.Errorf("failed to parse x-portkey-config: %v", err)
		}
		if cfg.Strategy.Mode != "fallback" {
			t.Errorf("expected strategy mode %q, got %q", "fallback", cfg.Strategy.Mode)
		}
		if len(cfg.Targets) != 2 {
			t.Fatalf("expected 2 targets, got %d", len(cfg.Targets))
		}
		first := cfg.Targets[0]
		if first.Provider != "openai" {
			t.Errorf("expected provider %q, got %q", "openai", first.Provider)
		}
		if first.Retry == nil || first.Retry.Attempts != 3 {
			t.Errorf("expected retry attempts 3, got %+v", first.Retry)
		}
		if first.Cache == nil || first.Cache.Mode != "semantic" {
			t.Errorf("expected semantic cache, got %+v", first.Cache)
		}
		if first.OverrideParams == nil || first.OverrideParams.Model != "gpt-4o" {
			t.Errorf("expected override model %q, got %+v", "gpt-4o", first.OverrideParams)
		}
		second := cfg.Targets[1]
		if second.Cache != nil {
			t.Errorf("expected no cache on second target, got %+v", second.Cache)
		}

		if trace := r.Header.Get("x-portkey-trace-id"); trace != "trace-42" {
			t.Errorf("expected trace id %q, got %q", "trace-42", trace)
		}

		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("ok"))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithMode(ModeFallback),
		WithLLMs(
			LLMOptions{
				Provider:   "openai",
				VirtualKey: "vk-1",
				Model:      "gpt-4o",
				MaxRetries: 3,
				Cache:      true,
				TraceID:    "trace-42",
			},
			LLMOptions{Provider: "anthropic", VirtualKey: "vk-2", Model: "claude-sonnet-4-20250514"},
		),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	_, err = llm.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Hi")},
		llms.WithTemperature(0.2),
		llms.WithJSONMode(),
	)
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}

	if body.Temperature == nil || *body.Temperature != 0.2 {
		t.Errorf("expected request temperature 0.2, got %+v", body.Temperature)
	}
	if body.ResponseFormat == nil || body.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %+v", body.ResponseFormat)
	}
	if body.Stream {
		t.Error("expected non-streaming request")
	}
}

func TestLLM_GenerateContent_Streaming(t *testing.T) {
	sseData := `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}

data: [DONE]

`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req portkeyclient.ChatCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected streaming request")
		}
		if req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
			t.Error("expected stream_options.include_usage to be set")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseData))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-4o"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	var streamed string
	resp, err := llm.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Hi")},
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			streamed += string(chunk)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}

	if streamed != "Hello world" {
		t.Errorf("streamed text = %q, want %q", streamed, "Hello world")
	}
	choice := resp.Choices[0]
	if choice.Content != "Hello world" {
		t.Errorf("expected content %q, got %q", "Hello world", choice.Content)
	}
	if choice.StopReason != "stop" {
		t.Errorf("expected stop reason %q, got %q", "stop", choice.StopReason)
	}
	if got := choice.GenerationInfo["TotalTokens"]; got != 7 {
		t.Errorf("expected TotalTokens 7, got %v", got)
	}
}

func TestLLM_GenerateContent_StreamingToolCalls(t *testing.T) {
	sseData := `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"getWeather","arguments":""}}]},"finish_reason":null}]}

data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]},"finish_reason":null}]}

data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]},"finish_reason":null}]}

data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}

data: [DONE]

`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseData))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-4o"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	resp, err := llm.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Weather in Paris?")},
		llms.WithStreamingFunc(func(_ context.Context, _ []byte) error { return nil }),
	)
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}

	choice := resp.Choices[0]
	if choice.StopReason != "tool_calls" {
		t.Errorf("expected stop reason %q, got %q", "tool_calls", choice.StopReason)
	}
	if len(choice.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(choice.ToolCalls))
	}
	tc := choice.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("expected tool call ID %q, got %q", "call_1", tc.ID)
	}
	if tc.FunctionCall.Name != "getWeather" {
		t.Errorf("expected function name %q, got %q", "getWeather", tc.FunctionCall.Name)
	}
	if tc.FunctionCall.Arguments != `{"city":"Paris"}` {
		t.Errorf("expected arguments %q, got %q", `{"city":"Paris"}`, tc.FunctionCall.Arguments)
	}
	if choice.FuncCall == nil || choice.FuncCall.Name != "getWeather" {
		t.Errorf("expected FuncCall to mirror the first tool call, got %+v", choice.FuncCall)
	}
}

func TestLLM_GenerateContent_StreamingFuncError(t *testing.T) {
	sseData := `data: {"choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}

data: {"choices":[{"index":0,"delta":{"content":" world"},"finish_reason":"stop"}]}

data: [DONE]

`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseData))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-4o"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	boom := errors.New("consumer gave up")
	_, err = llm.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Hi")},
		llms.WithStreamingFunc(func(_ context.Context, _ []byte) error { return boom }),
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected streaming func error, got %v", err)
	}
}

func TestLLM_GenerateContent_Cancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hello\"},\"finish_reason\":null}]}\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Hold the stream open until the client disconnects.
		<-r.Context().Done()
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-4o"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	_, err = llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Hi")},
		llms.WithStreamingFunc(func(_ context.Context, _ []byte) error {
			once.Do(cancel)
			return nil
		}),
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLLM_GenerateContent_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key","type":"authentication_error"}}`))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-bad"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-4o"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	_, err = llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "Hi"),
	})
	if err == nil {
		t.Fatal("expected error for 401 response")
	}

	var gwErr *portkeyclient.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected *portkeyclient.GatewayError, got %T", err)
	}
	if gwErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", gwErr.StatusCode)
	}
	if gwErr.Retryable {
		t.Error("expected auth error to be non-retryable")
	}
}

func TestLLM_Call_TextCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/completions" {
			t.Errorf("expected path /v1/completions, got %s", r.URL.Path)
		}

		var req portkeyclient.CompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "Tell me a joke" {
			t.Errorf("expected prompt %q, got %q", "Tell me a joke", req.Prompt)
		}
		if req.Model != "gpt-3.5-turbo-instruct" {
			t.Errorf("expected model %q, got %q", "gpt-3.5-turbo-instruct", req.Model)
		}

		resp := portkeyclient.CompletionResponse{
			ID:    "cmpl-1",
			Model: req.Model,
			Choices: []portkeyclient.CompletionChoice{
				{Index: 0, Text: "Why did the gopher cross the road?", FinishReason: "stop"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-3.5-turbo-instruct"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	got, err := llm.Call(context.Background(), "Tell me a joke")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "Why did the gopher cross the road?" {
		t.Errorf("expected completion %q, got %q", "Why did the gopher cross the road?", got)
	}
}

func TestLLM_Call_Streaming(t *testing.T) {
	sseData := `data: {"id":"cmpl-1","object":"text_completion","model":"gpt-3.5-turbo-instruct","choices":[{"index":0,"text":"Hello","finish_reason":null}]}

data: {"id":"cmpl-1","object":"text_completion","model":"gpt-3.5-turbo-instruct","choices":[{"index":0,"text":" there","finish_reason":"stop"}]}

data: [DONE]

`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseData))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-3.5-turbo-instruct"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	var streamed string
	got, err := llm.Call(context.Background(), "Hi",
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			streamed += string(chunk)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("expected completion %q, got %q", "Hello there", got)
	}
	if streamed != "Hello there" {
		t.Errorf("streamed text = %q, want %q", streamed, "Hello there")
	}
}

func TestLLM_Call_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","choices":[]}`))
	}))
	defer srv.Close()

	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-3.5-turbo-instruct"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	_, err = llm.Call(context.Background(), "Hi")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestLLM_Models(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("expected path /v1/models, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o","object":"model","owned_by":"openai"},{"id":"claude-sonnet-4-20250514","object":"model","owned_by":"anthropic"}]}`))
	}))
	defer srv.Close()

	llm, err := New(WithAPIKey("pk-test"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	models, err := llm.Models(context.Background())
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0] != "gpt-4o" {
		t.Errorf("model[0] = %q, want %q", models[0], "gpt-4o")
	}
}

type recordingHandler struct {
	callbacks.SimpleHandler

	mu            sync.Mutex
	contentStarts int
	contentEnds   int
	llmErrors     int
	streamed      []byte
}

func (h *recordingHandler) HandleLLMGenerateContentStart(_ context.Context, _ []llms.MessageContent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contentStarts++
}

func (h *recordingHandler) HandleLLMGenerateContentEnd(_ context.Context, _ *llms.ContentResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contentEnds++
}

func (h *recordingHandler) HandleLLMError(_ context.Context, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.llmErrors++
}

func (h *recordingHandler) HandleStreamingFunc(_ context.Context, chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streamed = append(h.streamed, chunk...)
}

func TestLLM_CallbacksHandler(t *testing.T) {
	sseData := `data: {"choices":[{"index":0,"delta":{"content":"Hi!"},"finish_reason":"stop"}]}

data: [DONE]

`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sseData))
	}))
	defer srv.Close()

	handler := &recordingHandler{}
	llm, err := New(
		WithAPIKey("pk-test"),
		WithBaseURL(srv.URL),
		WithCallback(handler),
		WithLLMs(LLMOptions{Provider: "openai", Model: "gpt-4o"}),
	)
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer llm.Close()

	_, err = llm.GenerateContent(context.Background(),
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "Hi")},
		llms.WithStreamingFunc(func(_ context.Context, _ []byte) error { return nil }),
	)
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}

	if handler.contentStarts != 1 || handler.contentEnds != 1 {
		t.Errorf("expected 1 start and 1 end, got %d and %d", handler.contentStarts, handler.contentEnds)
	}
	if string(handler.streamed) != "Hi!" {
		t.Errorf("handler streamed = %q, want %q", handler.streamed, "Hi!")
	}

	// A generation without targets reports the error to the handler.
	bare, err := New(WithAPIKey("pk-test"), WithCallback(handler))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	defer bare.Close()

	_, err = bare.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "Hi"),
	})
	if !errors.Is(err, ErrNoTargets) {
		t.Fatalf("expected ErrNoTargets, got %v", err)
	}
	if handler.llmErrors != 1 {
		t.Errorf("expected 1 handler error, got %d", handler.llmErrors)
	}
}
