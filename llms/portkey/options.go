package portkey

import (
	"net/http"

	"github.com/tmc/langchaingo/callbacks"
)

const (
	// DefaultBaseURL is the hosted Portkey gateway endpoint.
	DefaultBaseURL = "https://api.portkey.ai"

	apiKeyEnvVarName  = "PORTKEY_API_KEY"
	baseURLEnvVarName = "PORTKEY_BASE_URL"
)

type options struct {
	apiKey           string
	baseURL          string
	mode             Mode
	model            string
	httpClient       *http.Client
	callbacksHandler callbacks.Handler
	llms             []LLMOptions
}

// Option is a functional option for configuring the adapter.
type Option func(*options)

// WithAPIKey sets the Portkey API key. Defaults to the PORTKEY_API_KEY
// environment variable.
func WithAPIKey(apiKey string) Option {
	return func(o *options) {
		o.apiKey = apiKey
	}
}

// WithBaseURL points the adapter at a different gateway, e.g. a
// self-hosted deployment. Defaults to the PORTKEY_BASE_URL environment
// variable, then the hosted gateway.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithMode sets the routing strategy. Defaults to ModeSingle.
func WithMode(mode Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithModel sets the default model for requests. Without it, the model
// of the first registered target is used.
func WithModel(model string) Option {
	return func(o *options) {
		o.model = model
	}
}

// WithHTTPClient replaces the HTTP client used for gateway requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithCallback sets the callbacks handler notified of generation
// lifecycle events and streamed chunks.
func WithCallback(handler callbacks.Handler) Option {
	return func(o *options) {
		o.callbacksHandler = handler
	}
}

// WithLLMs registers gateway targets at construction time, equivalent to
// calling AddLLMs afterwards.
func WithLLMs(llms ...LLMOptions) Option {
	return func(o *options) {
		o.llms = append(o.llms, llms...)
	}
}
