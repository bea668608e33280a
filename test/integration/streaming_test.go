package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

func TestStreaming_TextDeltas(t *testing.T) {
	llm := newAdapter(t)

	var chunks []string
	resp := generate(t, llm, "Hello",
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			chunks = append(chunks, string(chunk))
			return nil
		}))

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	joined := strings.Join(chunks, "")
	if joined != "Hello from mock!" {
		t.Errorf("expected streamed %q, got %q", "Hello from mock!", joined)
	}
	if got := resp.Choices[0].Content; got != joined {
		t.Errorf("final content %q does not match streamed %q", got, joined)
	}

	var body struct {
		Stream        bool `json:"stream"`
		StreamOptions struct {
			IncludeUsage bool `json:"include_usage"`
		} `json:"stream_options"`
	}
	testEnv.LastRequest(t).decodeBody(t, &body)
	if !body.Stream {
		t.Error("expected stream=true in request")
	}
	if !body.StreamOptions.IncludeUsage {
		t.Error("expected stream_options.include_usage=true in request")
	}
}

func TestStreaming_UsageFromFinalChunk(t *testing.T) {
	llm := newAdapter(t)

	resp := generate(t, llm, "Hello",
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return nil
		}))

	info := resp.Choices[0].GenerationInfo
	// "Hello from mock!" streams as three word chunks.
	if got := info["CompletionTokens"]; got != 3 {
		t.Errorf("expected 3 completion tokens, got %v", got)
	}
	if got := info["TotalTokens"]; got != 13 {
		t.Errorf("expected 13 total tokens, got %v", got)
	}
}

func TestStreaming_ToolCallAssembly(t *testing.T) {
	llm := newAdapter(t)

	resp := generate(t, llm, "What is the weather in SF?",
		llms.WithTools(weatherTools()),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return nil
		}))

	choice := resp.Choices[0]
	if choice.StopReason != "tool_calls" {
		t.Errorf("expected stop reason %q, got %q", "tool_calls", choice.StopReason)
	}
	if len(choice.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(choice.ToolCalls))
	}
	tc := choice.ToolCalls[0]
	if tc.ID != "call_mock_1" {
		t.Errorf("expected tool call id %q, got %q", "call_mock_1", tc.ID)
	}
	if tc.FunctionCall.Name != "get_weather" {
		t.Errorf("expected function %q, got %q", "get_weather", tc.FunctionCall.Name)
	}
	if tc.FunctionCall.Arguments != `{"location":"SF"}` {
		t.Errorf("arguments not assembled across deltas: %q", tc.FunctionCall.Arguments)
	}
}

func TestStreaming_Call(t *testing.T) {
	llm := newAdapter(t)

	var chunks []string
	got, err := llm.Call(context.Background(), "Say hello",
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			chunks = append(chunks, string(chunk))
			return nil
		}))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if got != "Hello from mock!" {
		t.Errorf("expected %q, got %q", "Hello from mock!", got)
	}
	if joined := strings.Join(chunks, ""); joined != got {
		t.Errorf("streamed %q does not match returned %q", joined, got)
	}
}
