package portkey

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/noble-varghese/langchain/llms/portkey/internal/portkeyclient"
)

// gatewayConfig builds the x-portkey-config document from the routing
// mode and the registered targets.
func gatewayConfig(mode Mode, targets []LLMOptions) *portkeyclient.GatewayConfig {
	cfg := &portkeyclient.GatewayConfig{
		Strategy: portkeyclient.Strategy{Mode: string(mode)},
	}
	for _, t := range targets {
		cfg.Targets = append(cfg.Targets, targetFor(t))
	}
	return cfg
}

// targetFor maps one LLMOptions entry to a gateway config target.
func targetFor(lo LLMOptions) portkeyclient.Target {
	t := portkeyclient.Target{
		Provider:   lo.Provider,
		VirtualKey: lo.VirtualKey,
		APIKey:     lo.APIKey,
		Weight:     lo.Weight,
	}

	if lo.MaxRetries > 0 {
		t.Retry = &portkeyclient.RetryConfig{Attempts: lo.MaxRetries}
	}

	// CacheStatus picks the mode explicitly; the Cache flag alone means
	// semantic caching.
	switch {
	case lo.CacheStatus != "":
		t.Cache = &portkeyclient.CacheConfig{Mode: lo.CacheStatus}
	case lo.Cache:
		t.Cache = &portkeyclient.CacheConfig{Mode: "semantic"}
	}

	if op := overrideParams(lo); op != nil {
		t.OverrideParams = op
	}

	return t
}

// overrideParams collects the per-target model parameters, or nil when
// the target sets none.
func overrideParams(lo LLMOptions) *portkeyclient.OverrideParams {
	op := &portkeyclient.OverrideParams{
		Model:       lo.Model,
		Temperature: lo.Temperature,
		MaxTokens:   lo.MaxTokens,
		TopP:        lo.TopP,
		TopK:        lo.TopK,
		Stop:        lo.StopSequences,
	}
	if op.Model == "" && op.Temperature == nil && op.MaxTokens == 0 &&
		op.TopP == nil && op.TopK == 0 && len(op.Stop) == 0 {
		return nil
	}
	return op
}

// routingFor assembles the per-request routing headers: the config
// document, the trace ID of the first target that sets one, and the
// metadata maps of all targets merged with the call-level metadata.
// Call-level entries override target entries; among targets, earlier
// ones win.
func routingFor(mode Mode, targets []LLMOptions, callMetadata map[string]any) *portkeyclient.Routing {
	r := &portkeyclient.Routing{
		Config: gatewayConfig(mode, targets),
	}

	merged := make(map[string]any)
	for _, t := range targets {
		if r.TraceID == "" && t.TraceID != "" {
			r.TraceID = t.TraceID
		}
		for k, v := range t.Metadata {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	for k, v := range callMetadata {
		merged[k] = v
	}
	if len(merged) > 0 {
		r.Metadata = merged
	}

	return r
}

// messagesToChat translates langchaingo message contents into the
// gateway chat format.
func messagesToChat(messages []llms.MessageContent) ([]portkeyclient.ChatMessage, error) {
	chatMsgs := make([]portkeyclient.ChatMessage, 0, len(messages))

	for _, mc := range messages {
		role, err := roleToChat(mc.Role)
		if err != nil {
			return nil, err
		}

		msg := portkeyclient.ChatMessage{Role: role}

		var texts []string
		var parts []portkeyclient.ChatContentPart
		multimodal := false

		for _, part := range mc.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				texts = append(texts, p.Text)
				parts = append(parts, portkeyclient.ChatContentPart{Type: "text", Text: p.Text})

			case llms.ImageURLContent:
				multimodal = true
				parts = append(parts, portkeyclient.ChatContentPart{
					Type:     "image_url",
					ImageURL: &portkeyclient.ChatImageURL{URL: p.URL, Detail: p.Detail},
				})

			case llms.BinaryContent:
				multimodal = true
				dataURL := fmt.Sprintf("data:%s;base64,%s", p.MIMEType, base64.StdEncoding.EncodeToString(p.Data))
				parts = append(parts, portkeyclient.ChatContentPart{
					Type:     "image_url",
					ImageURL: &portkeyclient.ChatImageURL{URL: dataURL},
				})

			case llms.ToolCall:
				tc := portkeyclient.ChatToolCall{
					ID:   p.ID,
					Type: p.Type,
				}
				if p.FunctionCall != nil {
					tc.Function = portkeyclient.ChatFunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, tc)

			case llms.ToolCallResponse:
				msg.ToolCallID = p.ToolCallID
				msg.Name = p.Name
				texts = append(texts, p.Content)

			default:
				return nil, fmt.Errorf("portkey: unsupported content part type %T", part)
			}
		}

		// Plain text goes out as a string; any image part switches the
		// whole message to the multimodal array form.
		if multimodal {
			msg.Content = parts
		} else if len(texts) > 0 {
			msg.Content = strings.Join(texts, "")
		}

		chatMsgs = append(chatMsgs, msg)
	}

	return chatMsgs, nil
}

// roleToChat maps a langchaingo message role to the gateway role string.
func roleToChat(role llms.ChatMessageType) (string, error) {
	switch role {
	case llms.ChatMessageTypeSystem:
		return "system", nil
	case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
		return "user", nil
	case llms.ChatMessageTypeAI:
		return "assistant", nil
	case llms.ChatMessageTypeTool:
		return "tool", nil
	case llms.ChatMessageTypeFunction:
		return "function", nil
	default:
		return "", fmt.Errorf("portkey: unsupported message role %q", role)
	}
}

// toolsToChat translates langchaingo tool definitions into the gateway
// format.
func toolsToChat(tools []llms.Tool) ([]portkeyclient.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	out := make([]portkeyclient.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			return nil, fmt.Errorf("portkey: tool of type %q has no function definition", tool.Type)
		}
		def := portkeyclient.FunctionDef{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			params, err := json.Marshal(tool.Function.Parameters)
			if err != nil {
				return nil, fmt.Errorf("portkey: failed to marshal parameters for tool %q: %w", tool.Function.Name, err)
			}
			def.Parameters = params
		}
		out = append(out, portkeyclient.Tool{Type: tool.Type, Function: def})
	}
	return out, nil
}

// translateResponse converts a gateway chat response into the
// langchaingo content response.
func translateResponse(resp *portkeyclient.ChatCompletionResponse) *llms.ContentResponse {
	choices := make([]*llms.ContentChoice, 0, len(resp.Choices))

	for _, c := range resp.Choices {
		choice := &llms.ContentChoice{
			Content:        contentText(c.Message.Content),
			StopReason:     c.FinishReason,
			GenerationInfo: generationInfo(resp.Usage),
		}

		for _, tc := range c.Message.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		if len(choice.ToolCalls) > 0 {
			choice.FuncCall = choice.ToolCalls[0].FunctionCall
		}

		choices = append(choices, choice)
	}

	return &llms.ContentResponse{Choices: choices}
}

// contentText extracts the plain text from a chat message content value,
// which the gateway may return as a string or a multimodal array.
func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, part := range v {
			if m, ok := part.(map[string]any); ok {
				if t, ok := m["text"].(string); ok {
					sb.WriteString(t)
				}
			}
		}
		return sb.String()
	}
	return ""
}

// generationInfo carries token usage into the choice metadata.
func generationInfo(usage *portkeyclient.Usage) map[string]any {
	if usage == nil {
		return nil
	}
	return map[string]any{
		"CompletionTokens": usage.CompletionTokens,
		"PromptTokens":     usage.PromptTokens,
		"TotalTokens":      usage.TotalTokens,
	}
}

// toolCallBuffer tracks incremental tool call argument assembly across
// multiple SSE chunks for a single tool call index.
type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// bufferToolCallDelta merges one streamed tool call fragment into the
// buffer map. Fragments carry the ID and function name once and append
// argument bytes incrementally.
func bufferToolCallDelta(buffers map[int]*toolCallBuffer, tc portkeyclient.ChatChunkToolCall) {
	buf, exists := buffers[tc.Index]
	if !exists {
		buf = &toolCallBuffer{}
		buffers[tc.Index] = buf
	}
	if tc.ID != "" {
		buf.id = tc.ID
	}
	if tc.Function.Name != "" {
		buf.name = tc.Function.Name
	}
	buf.args.WriteString(tc.Function.Arguments)
}

// flushToolCalls drains the buffers into completed tool calls, ordered
// by stream index.
func flushToolCalls(buffers map[int]*toolCallBuffer) []llms.ToolCall {
	if len(buffers) == 0 {
		return nil
	}

	indexes := make([]int, 0, len(buffers))
	for idx := range buffers {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]llms.ToolCall, 0, len(buffers))
	for _, idx := range indexes {
		buf := buffers[idx]
		calls = append(calls, llms.ToolCall{
			ID:   buf.id,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      buf.name,
				Arguments: buf.args.String(),
			},
		})
	}
	return calls
}
