package portkey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"

	"github.com/noble-varghese/langchain/llms/portkey/internal/portkeyclient"
	"github.com/noble-varghese/langchain/pkg/debug"
)

// Name identifies the adapter in logs and diagnostics.
const Name = "portkey-ai-gateway"

// defaultModel is used when neither the adapter nor any target names a model.
const defaultModel = "gpt-3.5-turbo"

var (
	// ErrMissingAPIKey is returned by New when no Portkey API key is available.
	ErrMissingAPIKey = errors.New("missing the Portkey API key, set it in the PORTKEY_API_KEY environment variable")

	// ErrInvalidMode is returned by New for an unknown routing mode.
	ErrInvalidMode = errors.New("portkey: invalid routing mode")

	// ErrNoTargets is returned by generation calls before any gateway
	// target has been registered.
	ErrNoTargets = errors.New("portkey: no gateway targets registered, add at least one with AddLLMs")

	// ErrEmptyResponse is returned when the gateway answers with no choices.
	ErrEmptyResponse = errors.New("portkey: empty response from gateway")
)

// LLM is a langchaingo model backed by the Portkey AI gateway. It
// declares routing (mode, targets, retries, caching) in the gateway
// config attached to each request and translates between langchaingo
// messages and the gateway's completion endpoints. The gateway itself
// executes fallback, load balancing, retries, and caching.
type LLM struct {
	// CallbacksHandler is notified of generation lifecycle events and
	// streamed chunks.
	CallbacksHandler callbacks.Handler

	client  *portkeyclient.Client
	mode    Mode
	model   string
	targets []LLMOptions
}

// Ensure LLM implements llms.Model at compile time.
var _ llms.Model = (*LLM)(nil)

// New creates a Portkey adapter. The API key is resolved from the
// options or the PORTKEY_API_KEY environment variable; the gateway URL
// from the options, PORTKEY_BASE_URL, or the hosted gateway default.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		mode: ModeSingle,
	}
	for _, opt := range opts {
		opt(o)
	}

	apiKey := o.apiKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnvVarName)
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = os.Getenv(baseURLEnvVarName)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if !o.mode.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, o.mode)
	}

	client, err := portkeyclient.New(portkeyclient.Config{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: o.httpClient,
	})
	if err != nil {
		return nil, err
	}

	llm := &LLM{
		CallbacksHandler: o.callbacksHandler,
		client:           client,
		mode:             o.mode,
		model:            o.model,
	}
	if len(o.llms) > 0 {
		llm.AddLLMs(o.llms...)
	}

	debug.Log("config", "adapter created",
		"adapter", Name,
		"mode", string(llm.mode),
		"targets", len(llm.targets),
	)

	return llm, nil
}

// AddLLMs registers gateway targets and returns the adapter for
// chaining. When the adapter has no default model yet, the model of the
// first target that names one is adopted.
//
// AddLLMs is meant for setup time; do not call it concurrently with
// active generations.
func (o *LLM) AddLLMs(llmOptions ...LLMOptions) *LLM {
	o.targets = append(o.targets, llmOptions...)
	if o.model == "" {
		for _, t := range o.targets {
			if t.Model != "" {
				o.model = t.Model
				break
			}
		}
	}
	return o
}

// Mode returns the configured routing mode.
func (o *LLM) Mode() Mode {
	return o.mode
}

// Model returns the model requests default to when no per-call model is
// set.
func (o *LLM) Model() string {
	if o.model == "" {
		return defaultModel
	}
	return o.model
}

// Call generates a completion for a single prompt using the gateway's
// legacy text completion endpoint. With llms.WithStreamingFunc the
// completion is streamed token by token. The langchaingo ecosystem
// favors GenerateContent; Call remains for prompt-in, text-out use.
func (o *LLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMStart(ctx, []string{prompt})
	}

	text, err := o.callCompletion(ctx, prompt, options...)
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return "", err
	}

	return text, nil
}

// GenerateContent asks the gateway for a chat completion over the
// registered targets. With llms.WithStreamingFunc the response is
// streamed and the function is invoked once per content delta.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentStart(ctx, messages)
	}

	resp, err := o.generateContent(ctx, messages, options...)
	if err != nil {
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleLLMError(ctx, err)
		}
		return nil, err
	}

	if o.CallbacksHandler != nil {
		o.CallbacksHandler.HandleLLMGenerateContentEnd(ctx, resp)
	}

	return resp, nil
}

// Models returns the model identifiers the gateway exposes.
func (o *LLM) Models(ctx context.Context) ([]string, error) {
	models, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Close releases the underlying HTTP resources.
func (o *LLM) Close() error {
	return o.client.Close()
}

func (o *LLM) generateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if len(o.targets) == 0 {
		return nil, ErrNoTargets
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	chatMsgs, err := messagesToChat(messages)
	if err != nil {
		return nil, err
	}

	tools, err := toolsToChat(opts.Tools)
	if err != nil {
		return nil, err
	}

	req := &portkeyclient.ChatCompletionRequest{
		Model:      o.requestModel(opts.Model),
		Messages:   chatMsgs,
		Tools:      tools,
		ToolChoice: opts.ToolChoice,
		MaxTokens:  opts.MaxTokens,
		N:          opts.N,
		Stop:       opts.StopWords,
		Seed:       opts.Seed,
		Routing:    routingFor(o.mode, o.targets, opts.Metadata),
	}
	if opts.Temperature != 0 {
		req.Temperature = Float64(opts.Temperature)
	}
	if opts.TopP != 0 {
		req.TopP = Float64(opts.TopP)
	}
	if opts.FrequencyPenalty != 0 {
		req.FrequencyPenalty = Float64(opts.FrequencyPenalty)
	}
	if opts.PresencePenalty != 0 {
		req.PresencePenalty = Float64(opts.PresencePenalty)
	}
	if opts.JSONMode {
		req.ResponseFormat = &portkeyclient.ResponseFormat{Type: "json_object"}
	}

	if opts.StreamingFunc != nil {
		return o.streamChat(ctx, req, &opts)
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return translateResponse(resp), nil
}

func (o *LLM) streamChat(ctx context.Context, req *portkeyclient.ChatCompletionRequest, opts *llms.CallOptions) (*llms.ContentResponse, error) {
	// Cancel the stream on early exit so the reader goroutine shuts down.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := o.client.StreamChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	buffers := make(map[int]*toolCallBuffer)
	var finishReason string
	var usage *portkeyclient.Usage

	for ev := range events {
		if ev.Err != nil {
			return nil, ev.Err
		}

		chunk := ev.Chunk
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finishReason = *choice.FinishReason
		}

		for _, tc := range choice.Delta.ToolCalls {
			bufferToolCallDelta(buffers, tc)
		}

		if choice.Delta.Content == nil || *choice.Delta.Content == "" {
			continue
		}
		delta := []byte(*choice.Delta.Content)
		content.Write(delta)

		if err := opts.StreamingFunc(ctx, delta); err != nil {
			return nil, err
		}
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleStreamingFunc(ctx, delta)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	choice := &llms.ContentChoice{
		Content:        content.String(),
		StopReason:     finishReason,
		GenerationInfo: generationInfo(usage),
		ToolCalls:      flushToolCalls(buffers),
	}
	if len(choice.ToolCalls) > 0 {
		choice.FuncCall = choice.ToolCalls[0].FunctionCall
	}

	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

func (o *LLM) callCompletion(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if len(o.targets) == 0 {
		return "", ErrNoTargets
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	req := &portkeyclient.CompletionRequest{
		Model:     o.requestModel(opts.Model),
		Prompt:    prompt,
		MaxTokens: opts.MaxTokens,
		N:         opts.N,
		Stop:      opts.StopWords,
		Routing:   routingFor(o.mode, o.targets, opts.Metadata),
	}
	if opts.Temperature != 0 {
		req.Temperature = Float64(opts.Temperature)
	}
	if opts.TopP != 0 {
		req.TopP = Float64(opts.TopP)
	}

	if opts.StreamingFunc != nil {
		return o.streamCompletion(ctx, req, &opts)
	}

	resp, err := o.client.CreateCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	// An empty text on the first choice is a valid completion.
	return resp.Choices[0].Text, nil
}

func (o *LLM) streamCompletion(ctx context.Context, req *portkeyclient.CompletionRequest, opts *llms.CallOptions) (string, error) {
	// Cancel the stream on early exit so the reader goroutine shuts down.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := o.client.StreamCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	var content strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return "", ev.Err
		}
		if len(ev.Chunk.Choices) == 0 || ev.Chunk.Choices[0].Text == "" {
			continue
		}

		delta := []byte(ev.Chunk.Choices[0].Text)
		content.Write(delta)

		if err := opts.StreamingFunc(ctx, delta); err != nil {
			return "", err
		}
		if o.CallbacksHandler != nil {
			o.CallbacksHandler.HandleStreamingFunc(ctx, delta)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	return content.String(), nil
}

// requestModel picks the model for a request: the per-call option, the
// adapter default (set explicitly or adopted from a target), then the
// package default.
func (o *LLM) requestModel(optModel string) string {
	if optModel != "" {
		return optModel
	}
	if o.model != "" {
		return o.model
	}
	return defaultModel
}
