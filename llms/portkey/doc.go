// Package portkey provides a langchaingo model backed by the Portkey
// AI gateway.
//
// The adapter speaks the gateway's OpenAI-compatible API and declares
// routing through the x-portkey-config header: a strategy mode (single,
// fallback, or loadbalance) plus one target per registered LLM. Target
// options such as provider, virtual key, weight, retries, and caching
// are forwarded to the gateway, which executes the routing. Model
// parameters on a target travel as override_params.
//
//	llm, err := portkey.New(
//		portkey.WithMode(portkey.ModeFallback),
//		portkey.WithLLMs(
//			portkey.LLMOptions{Provider: "openai", VirtualKey: "open-ai-key-1234", Model: "gpt-4o"},
//			portkey.LLMOptions{Provider: "anthropic", VirtualKey: "anthropic-key-1234", Model: "claude-sonnet-4-20250514"},
//		),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer llm.Close()
//
//	completion, err := llms.GenerateFromSinglePrompt(ctx, llm, "Tell me a joke")
//
// The Portkey API key is read from PORTKEY_API_KEY unless set with
// WithAPIKey; self-hosted gateways are reached via WithBaseURL or
// PORTKEY_BASE_URL.
package portkey
