package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/noble-varghese/langchain/llms/portkey"
)

func TestGatewayError_Unauthorized(t *testing.T) {
	llm := newAdapterWithTargets(t,
		portkey.WithAPIKey("wrong-key"),
		portkey.WithLLMs(portkey.LLMOptions{Provider: "openai"}),
	)

	_, err := llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "Hello"),
	})
	if err == nil {
		t.Fatal("expected error for rejected API key")
	}
	if !strings.Contains(err.Error(), "HTTP 401") {
		t.Errorf("expected HTTP 401 in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("expected gateway message in error, got %v", err)
	}
}

func TestGatewayError_RateLimited(t *testing.T) {
	llm := newAdapter(t)

	_, err := llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "please ratelimit me"),
	})
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !strings.Contains(err.Error(), "HTTP 429") {
		t.Errorf("expected HTTP 429 in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "mock rate limit") {
		t.Errorf("expected gateway message in error, got %v", err)
	}
}

func TestGatewayError_ServerError(t *testing.T) {
	llm := newAdapter(t)

	_, err := llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "crash for me"),
	})
	if err == nil {
		t.Fatal("expected server error")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("expected HTTP 500 in error, got %v", err)
	}
}

func TestGatewayError_StreamingErrorStatus(t *testing.T) {
	llm := newAdapter(t)

	_, err := llm.GenerateContent(context.Background(), []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, "crash for me"),
	}, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		return nil
	}))
	if err == nil {
		t.Fatal("expected server error on streaming request")
	}
	if !strings.Contains(err.Error(), "HTTP 500") {
		t.Errorf("expected HTTP 500 in error, got %v", err)
	}
}

func TestAdapterError_MissingAPIKey(t *testing.T) {
	t.Setenv("PORTKEY_API_KEY", "")

	_, err := portkey.New(portkey.WithBaseURL(testEnv.Gateway.URL))
	if err == nil {
		t.Fatal("expected missing API key error")
	}
	if !strings.Contains(err.Error(), "PORTKEY_API_KEY") {
		t.Errorf("expected env var hint in error, got %v", err)
	}
}
