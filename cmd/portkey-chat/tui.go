package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/tmc/langchaingo/llms"

	"github.com/noble-varghese/langchain/llms/portkey"
	"github.com/noble-varghese/langchain/pkg/config"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

type turnKind int

const (
	turnNotice turnKind = iota
	turnUser
	turnAssistant
	turnError
)

// chatTurn is one block of the transcript. Raw text is kept so the
// markdown can be re-rendered when the terminal is resized.
type chatTurn struct {
	kind turnKind
	text string
}

// streamEvent carries one update from the generation goroutine into
// the update loop.
type streamEvent struct {
	delta  string
	text   string
	tokens int
	done   bool
	err    error
}

type chatModel struct {
	ctx context.Context
	llm *portkey.LLM
	cfg *config.Config

	viewport viewport.Model
	textarea textarea.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer
	markdown bool

	turns      []chatTurn
	pending    string
	waiting    bool
	lastTokens int

	events     chan streamEvent
	cancelTurn context.CancelFunc

	width  int
	height int
}

func newChatModel(ctx context.Context, llm *portkey.LLM, cfg *config.Config) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	m := chatModel{
		ctx:      ctx,
		llm:      llm,
		cfg:      cfg,
		viewport: viewport.New(80, 20),
		textarea: ta,
		spin:     sp,
		renderer: newRenderer(80, cfg.Chat.Markdown),
		markdown: cfg.Chat.Markdown,
	}
	m.turns = []chatTurn{{
		kind: turnNotice,
		text: fmt.Sprintf("Connected to %s (mode %s). Enter sends, esc cancels or quits.",
			llm.Model(), llm.Mode()),
	}}
	m.refresh()
	return m
}

func newRenderer(width int, markdown bool) *glamour.TermRenderer {
	if !markdown {
		return nil
	}
	wrap := min(width-4, 100)
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(wrap))
	if err != nil {
		return nil
	}
	return r
}

func (m chatModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = v.Width
		m.height = v.Height
		m.textarea.SetWidth(v.Width - 2)
		m.viewport.Width = v.Width
		m.viewport.Height = max(5, v.Height-m.textarea.Height()-2)
		m.renderer = newRenderer(v.Width, m.markdown)
		m.refresh()

	case tea.KeyMsg:
		switch v.String() {
		case "ctrl+c":
			m.endTurn()
			return m, tea.Quit
		case "esc":
			if m.waiting {
				m.endTurn()
				m.turns = append(m.turns, chatTurn{kind: turnNotice, text: "(turn canceled)"})
				m.refresh()
				return m, nil
			}
			return m, tea.Quit
		case "enter":
			prompt := strings.TrimSpace(m.textarea.Value())
			if prompt == "" || m.waiting {
				return m, tea.Batch(taCmd, vpCmd)
			}
			history := m.llmHistory()
			m.turns = append(m.turns, chatTurn{kind: turnUser, text: prompt})
			m.textarea.Reset()
			m.pending = ""
			m.waiting = true
			m.lastTokens = 0
			m.refresh()

			turnCtx, cancel := context.WithCancel(m.ctx)
			m.cancelTurn = cancel
			m.events = make(chan streamEvent, 32)
			go generateTurn(turnCtx, m.llm, m.cfg, history, prompt, m.events)
			return m, tea.Batch(listenForEvent(m.events), m.spin.Tick)
		}

	case spinner.TickMsg:
		if !m.waiting {
			return m, tea.Batch(taCmd, vpCmd)
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(v)
		return m, tea.Batch(cmd, taCmd, vpCmd)

	case streamEvent:
		if !m.waiting {
			return m, nil
		}
		switch {
		case v.err != nil:
			m.endTurn()
			m.turns = append(m.turns, chatTurn{kind: turnError, text: "error: " + v.err.Error()})
			m.refresh()
			return m, nil
		case v.done:
			text := v.text
			if text == "" {
				text = m.pending
			}
			m.endTurn()
			m.turns = append(m.turns, chatTurn{kind: turnAssistant, text: text})
			m.lastTokens = v.tokens
			m.refresh()
			return m, nil
		default:
			m.pending += v.delta
			m.refresh()
			return m, listenForEvent(m.events)
		}
	}

	return m, tea.Batch(taCmd, vpCmd)
}

func (m chatModel) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.textarea.View(),
	)
}

func (m chatModel) headerView() string {
	return titleStyle.Render("portkey-chat") +
		statusStyle.Render(fmt.Sprintf(" • %s • %s", m.llm.Model(), m.llm.Mode()))
}

func (m chatModel) statusView() string {
	if m.waiting {
		return statusStyle.Render(m.spin.View() + " waiting for " + m.llm.Model())
	}
	hint := "enter to send • esc to quit"
	if m.lastTokens > 0 {
		hint = fmt.Sprintf("%d tokens • %s", m.lastTokens, hint)
	}
	return statusStyle.Render(hint)
}

// endTurn tears down the in-flight generation, if any.
func (m *chatModel) endTurn() {
	if m.cancelTurn != nil {
		m.cancelTurn()
		m.cancelTurn = nil
	}
	m.events = nil
	m.waiting = false
	m.pending = ""
}

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m chatModel) transcript() string {
	parts := make([]string, 0, len(m.turns)+1)
	for _, t := range m.turns {
		parts = append(parts, m.renderTurn(t))
	}
	if m.waiting {
		parts = append(parts, assistantStyle.Render("Assistant")+"\n"+m.pending)
	}
	return strings.Join(parts, "\n\n")
}

func (m chatModel) renderTurn(t chatTurn) string {
	switch t.kind {
	case turnUser:
		return userStyle.Render("You") + "\n" + t.text
	case turnAssistant:
		return assistantStyle.Render("Assistant") + "\n" + m.renderMarkdown(t.text)
	case turnError:
		return errorStyle.Render(t.text)
	default:
		return statusStyle.Render(t.text)
	}
}

func (m chatModel) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// llmHistory converts the transcript into the message history for the
// next turn. Notices and errors are not part of the conversation.
func (m chatModel) llmHistory() []llms.MessageContent {
	history := make([]llms.MessageContent, 0, len(m.turns))
	for _, t := range m.turns {
		switch t.kind {
		case turnUser:
			history = append(history, llms.TextParts(llms.ChatMessageTypeHuman, t.text))
		case turnAssistant:
			history = append(history, llms.TextParts(llms.ChatMessageTypeAI, t.text))
		}
	}
	return history
}

// listenForEvent waits for the next event from the generation
// goroutine. The update loop re-issues it after every received event.
func listenForEvent(events <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return ev
	}
}

// generateTurn runs one generation and feeds deltas, then the final
// result, into the events channel. Sends select against ctx so the
// goroutine never outlives a canceled turn.
func generateTurn(ctx context.Context, llm *portkey.LLM, cfg *config.Config, history []llms.MessageContent, prompt string, events chan<- streamEvent) {
	defer close(events)

	send := func(ev streamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	messages := chatMessages(cfg.Chat.System, history, prompt)
	opts := append(callOptions(cfg), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if !send(streamEvent{delta: string(chunk)}) {
			return ctx.Err()
		}
		return nil
	}))

	resp, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		send(streamEvent{err: err})
		return
	}

	choice := resp.Choices[0]
	ev := streamEvent{done: true, text: choice.Content}
	if total, ok := choice.GenerationInfo["TotalTokens"].(int); ok {
		ev.tokens = total
	}
	send(ev)
}
