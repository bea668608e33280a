package portkeyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noble-varghese/langchain/pkg/debug"
)

// Gateway headers. Authentication and routing instructions travel in
// x-portkey-* headers; the request body stays OpenAI-compatible.
const (
	headerAPIKey   = "x-portkey-api-key"
	headerConfig   = "x-portkey-config"
	headerTraceID  = "x-portkey-trace-id"
	headerMetadata = "x-portkey-metadata"
)

// Config holds connection settings for the gateway client.
type Config struct {
	// BaseURL is the gateway URL (e.g. "https://api.portkey.ai").
	BaseURL string

	// APIKey is the Portkey API key sent in the x-portkey-api-key header.
	APIKey string

	// Timeout for individual HTTP requests. Defaults to 120s. Streaming
	// requests ignore the timeout and rely on context cancellation.
	Timeout time.Duration

	// HTTPClient optionally replaces the default HTTP client.
	HTTPClient *http.Client
}

// Client performs HTTP requests against a Portkey gateway. It covers the
// chat and legacy completion endpoints, both sync and streaming, and
// attaches the per-request routing headers the gateway understands.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates a new Client for a Portkey gateway.
// Returns an error if the configuration is invalid.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("portkeyclient: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("portkeyclient: APIKey is required")
	}

	// Normalize: remove trailing slash from base URL.
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
	}, nil
}

// CreateChatCompletion performs non-streaming inference against the chat
// completions endpoint.
func (c *Client) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	// Ensure we are not in streaming mode.
	reqCopy := *req
	reqCopy.Stream = false
	reqCopy.StreamOptions = nil

	body, err := json.Marshal(&reqCopy)
	if err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", body, req.Routing, false)
	if err != nil {
		return nil, err
	}

	debug.Log("gateway", "chat completion request",
		"model", reqCopy.Model,
		"messages", len(reqCopy.Messages),
	)
	debug.Raw("gateway", string(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to parse gateway response: %w", err)
	}

	return &chatResp, nil
}

// CreateCompletion performs non-streaming inference against the legacy
// text completion endpoint.
func (c *Client) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	reqCopy := *req
	reqCopy.Stream = false

	body, err := json.Marshal(&reqCopy)
	if err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/completions", body, req.Routing, false)
	if err != nil {
		return nil, err
	}

	debug.Log("gateway", "completion request", "model", reqCopy.Model)
	debug.Raw("gateway", string(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var complResp CompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&complResp); err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to parse gateway response: %w", err)
	}

	return &complResp, nil
}

// ListModels returns the models the gateway exposes by querying the
// /v1/models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/v1/models", nil, nil, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var modelsResp ModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to parse models response: %w", err)
	}

	return modelsResp.Data, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// newRequest builds an HTTP request with the gateway headers applied.
// A nil body produces a request without a payload (GET endpoints).
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte, routing *Routing, stream bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("portkeyclient: failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerAPIKey, c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	if err := applyRouting(httpReq.Header, routing); err != nil {
		return nil, err
	}

	return httpReq, nil
}

// applyRouting serializes the routing document into the x-portkey-*
// headers. A nil routing leaves the headers unset and the gateway falls
// back to its account-level defaults.
func applyRouting(h http.Header, routing *Routing) error {
	if routing == nil {
		return nil
	}

	if routing.Config != nil {
		data, err := json.Marshal(routing.Config)
		if err != nil {
			return fmt.Errorf("portkeyclient: failed to marshal gateway config: %w", err)
		}
		h.Set(headerConfig, string(data))
	}

	if routing.TraceID != "" {
		h.Set(headerTraceID, routing.TraceID)
	}

	if len(routing.Metadata) > 0 {
		data, err := json.Marshal(routing.Metadata)
		if err != nil {
			return fmt.Errorf("portkeyclient: failed to marshal metadata: %w", err)
		}
		h.Set(headerMetadata, string(data))
	}

	return nil
}
