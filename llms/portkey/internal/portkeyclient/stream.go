package portkeyclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/noble-varghese/langchain/pkg/debug"
)

// ChatStreamEvent is one element of a streaming chat response. Exactly
// one of Chunk or Err is set.
type ChatStreamEvent struct {
	Chunk *ChatCompletionChunk
	Err   error
}

// CompletionStreamEvent is one element of a streaming text completion
// response. Exactly one of Chunk or Err is set.
type CompletionStreamEvent struct {
	Chunk *CompletionChunk
	Err   error
}

// StreamChatCompletion performs streaming inference against the chat
// completions endpoint. It returns a channel of events that is closed
// when the stream completes, errors, or the context is cancelled.
//
// The HTTP client timeout is not applied for streaming requests because a
// stream can legitimately last longer than any fixed timeout. Lifecycle
// control relies on context cancellation instead.
func (c *Client) StreamChatCompletion(ctx context.Context, req *ChatCompletionRequest) (<-chan ChatStreamEvent, error) {
	// Force streaming mode and ask for the final usage chunk.
	reqCopy := *req
	reqCopy.Stream = true
	reqCopy.StreamOptions = &ChatStreamOptions{IncludeUsage: true}

	body, err := json.Marshal(&reqCopy)
	if err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to marshal request: %w", err)
	}

	httpResp, err := c.startStream(ctx, "/v1/chat/completions", body, req.Routing)
	if err != nil {
		return nil, err
	}

	ch := make(chan ChatStreamEvent, 16)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		parseSSE(ctx, httpResp.Body, func(payload []byte) bool {
			var chunk ChatCompletionChunk
			if err := json.Unmarshal(payload, &chunk); err != nil {
				slog.Warn("skipping malformed SSE chunk",
					"error", err.Error(),
					"data", debug.Truncate(string(payload), 200),
				)
				return true
			}
			return sendChat(ctx, ch, ChatStreamEvent{Chunk: &chunk})
		}, func(err error) {
			sendChat(ctx, ch, ChatStreamEvent{Err: err})
		})
	}()

	return ch, nil
}

// StreamCompletion performs streaming inference against the legacy text
// completion endpoint. The returned channel is closed when the stream
// completes, errors, or the context is cancelled.
func (c *Client) StreamCompletion(ctx context.Context, req *CompletionRequest) (<-chan CompletionStreamEvent, error) {
	reqCopy := *req
	reqCopy.Stream = true

	body, err := json.Marshal(&reqCopy)
	if err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to marshal request: %w", err)
	}

	httpResp, err := c.startStream(ctx, "/v1/completions", body, req.Routing)
	if err != nil {
		return nil, err
	}

	ch := make(chan CompletionStreamEvent, 16)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		parseSSE(ctx, httpResp.Body, func(payload []byte) bool {
			var chunk CompletionChunk
			if err := json.Unmarshal(payload, &chunk); err != nil {
				slog.Warn("skipping malformed SSE chunk",
					"error", err.Error(),
					"data", debug.Truncate(string(payload), 200),
				)
				return true
			}
			return sendCompletion(ctx, ch, CompletionStreamEvent{Chunk: &chunk})
		}, func(err error) {
			sendCompletion(ctx, ch, CompletionStreamEvent{Err: err})
		})
	}()

	return ch, nil
}

// startStream issues the streaming POST and verifies the status code
// before any SSE parsing begins.
func (c *Client) startStream(ctx context.Context, path string, body []byte, routing *Routing) (*http.Response, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, path, body, routing, true)
	if err != nil {
		return nil, err
	}

	debug.Log("stream", "starting stream", "path", path)
	debug.Raw("stream", string(body))

	// Use a client without timeout for streaming. The context controls
	// the request lifetime instead.
	streamClient := &http.Client{
		Transport: c.httpClient.Transport,
	}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, MapHTTPError(httpResp)
	}

	return httpResp, nil
}

// parseSSE reads SSE lines from the body and invokes emit for each data
// payload. Emit returns false to stop reading. onErr receives read
// failures other than context cancellation.
//
// SSE format expected:
//
//	data: {"id":"...","choices":[...]}\n
//	\n
//	data: [DONE]\n
//	\n
func parseSSE(ctx context.Context, body io.Reader, emit func(payload []byte) bool, onErr func(error)) {
	scanner := bufio.NewScanner(body)

	for scanner.Scan() {
		// Check for context cancellation between lines.
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// SSE lines that don't start with "data: " are ignored
		// (e.g., empty lines, comments starting with ":").
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")

		// Handle the [DONE] sentinel.
		if payload == "[DONE]" {
			return
		}

		if !emit([]byte(payload)) {
			return
		}
	}

	// Scanner error (e.g., connection dropped).
	if err := scanner.Err(); err != nil {
		// Context cancellation is not an error from our perspective.
		if ctx.Err() != nil {
			return
		}
		onErr(fmt.Errorf("portkeyclient: SSE stream read error: %w", err))
	}
}

// sendChat delivers an event unless the context is already cancelled.
// It reports whether the consumer is still listening.
func sendChat(ctx context.Context, ch chan<- ChatStreamEvent, ev ChatStreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendCompletion delivers an event unless the context is already cancelled.
func sendCompletion(ctx context.Context, ch chan<- CompletionStreamEvent, ev CompletionStreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
