// Command portkey-chat is an interactive terminal chat client backed by
// the Portkey AI gateway. It reads gateway targets from the standard
// config file, keeps the conversation history for the session, and
// renders assistant replies as markdown.
//
// Flags:
//
//	--config       Path to a portkey.yaml config file
//	--model        Model to request, overrides the config
//	--prompt       Run a single prompt, print the reply, and exit
//	--list-models  Print the models the gateway exposes and exit
//	--no-markdown  Print replies as plain text
//
// The Portkey API key is taken from the config file or the
// PORTKEY_API_KEY environment variable.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/noble-varghese/langchain/llms/portkey"
	"github.com/noble-varghese/langchain/pkg/config"
	"github.com/noble-varghese/langchain/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portkey-chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a portkey.yaml config file")
		model      = flag.String("model", "", "model to request, overrides the config")
		prompt     = flag.String("prompt", "", "run a single prompt, print the reply, and exit")
		listModels = flag.Bool("list-models", false, "print the models the gateway exposes and exit")
		noMarkdown = flag.Bool("no-markdown", false, "print replies as plain text")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *model != "" {
		cfg.Chat.Model = *model
	}
	if *noMarkdown {
		cfg.Chat.Markdown = false
	}

	debug.Init(cfg.Log.Debug, cfg.Log.Level, cfg.Log.Format)

	llm, err := buildAdapter(cfg)
	if err != nil {
		return fmt.Errorf("creating adapter: %w", err)
	}
	defer llm.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *listModels:
		return printModels(ctx, llm)
	case *prompt != "":
		return runOnce(ctx, llm, cfg, *prompt)
	default:
		return runTUI(ctx, llm, cfg)
	}
}

// buildAdapter wires the config file into the gateway adapter. Without
// configured targets it routes to a single default provider and leaves
// credential resolution to the gateway. All targets of a session share
// one trace ID unless the config pins its own.
func buildAdapter(cfg *config.Config) (*portkey.LLM, error) {
	targets := targetOptions(cfg.Targets)
	if len(targets) == 0 {
		targets = []portkey.LLMOptions{{Provider: "openai"}}
	}
	if !hasTraceID(targets) {
		targets[0].TraceID = uuid.NewString()
	}

	opts := []portkey.Option{
		portkey.WithBaseURL(cfg.Gateway.BaseURL),
		portkey.WithMode(portkey.Mode(cfg.Gateway.Mode)),
		portkey.WithLLMs(targets...),
	}
	if cfg.Gateway.APIKey != "" {
		opts = append(opts, portkey.WithAPIKey(cfg.Gateway.APIKey))
	}
	if cfg.Chat.Model != "" {
		opts = append(opts, portkey.WithModel(cfg.Chat.Model))
	}
	if cfg.Gateway.Timeout > 0 {
		opts = append(opts, portkey.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.Timeout}))
	}

	return portkey.New(opts...)
}

func targetOptions(targets []config.TargetConfig) []portkey.LLMOptions {
	out := make([]portkey.LLMOptions, 0, len(targets))
	for _, t := range targets {
		out = append(out, portkey.LLMOptions{
			Provider:      t.Provider,
			VirtualKey:    t.VirtualKey,
			APIKey:        t.APIKey,
			Model:         t.Model,
			Weight:        t.Weight,
			MaxRetries:    t.MaxRetries,
			Cache:         t.Cache,
			CacheStatus:   t.CacheMode,
			TraceID:       t.TraceID,
			Metadata:      t.Metadata,
			Temperature:   t.Temperature,
			MaxTokens:     t.MaxTokens,
			TopP:          t.TopP,
			TopK:          t.TopK,
			StopSequences: t.Stop,
		})
	}
	return out
}

func hasTraceID(targets []portkey.LLMOptions) bool {
	for _, t := range targets {
		if t.TraceID != "" {
			return true
		}
	}
	return false
}

func printModels(ctx context.Context, llm *portkey.LLM) error {
	models, err := llm.Models(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	for _, m := range models {
		fmt.Println(m)
	}
	return nil
}

// runOnce answers a single prompt. Plain text is streamed as it
// arrives; markdown output is rendered once the reply is complete.
func runOnce(ctx context.Context, llm *portkey.LLM, cfg *config.Config, prompt string) error {
	messages := chatMessages(cfg.Chat.System, nil, prompt)
	opts := callOptions(cfg)

	if !cfg.Chat.Markdown {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			_, err := os.Stdout.Write(chunk)
			return err
		}))
		_, err := llm.GenerateContent(ctx, messages, opts...)
		fmt.Println()
		return err
	}

	resp, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return err
	}
	text := resp.Choices[0].Content

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		fmt.Println(text)
		return nil
	}
	out, err := renderer.Render(text)
	if err != nil {
		fmt.Println(text)
		return nil
	}
	fmt.Print(out)
	return nil
}

func runTUI(ctx context.Context, llm *portkey.LLM, cfg *config.Config) error {
	p := tea.NewProgram(newChatModel(ctx, llm, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// chatMessages assembles the message list for one turn: the system
// prompt when configured, the session history, then the new prompt.
func chatMessages(system string, history []llms.MessageContent, prompt string) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(history)+2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, history...)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
	return messages
}

// callOptions builds the per-turn options. Every turn is tagged with a
// fresh request ID in the gateway metadata so it can be found in the
// gateway logs.
func callOptions(cfg *config.Config) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithMetadata(map[string]any{"request_id": uuid.NewString()}),
	}
	if cfg.Chat.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*cfg.Chat.Temperature))
	}
	if cfg.Chat.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.Chat.MaxTokens))
	}
	return opts
}
