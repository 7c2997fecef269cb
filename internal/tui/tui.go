// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/jenesi-go/internal/chat"
	"github.com/comigor/jenesi-go/internal/history"
	"github.com/comigor/jenesi-go/internal/intent"
	"github.com/comigor/jenesi-go/internal/logger"
	"github.com/comigor/jenesi-go/internal/window"
)

type theme struct {
	user       lipgloss.Style
	model      lipgloss.Style
	errorText  lipgloss.Style
	muted      lipgloss.Style
	status     lipgloss.Style
	busy       lipgloss.Style
	suggestion lipgloss.Style
	inputPanel lipgloss.Style
}

func newTheme() theme {
	mint := lipgloss.Color("#05ffa1")
	blue := lipgloss.Color("#01cdfe")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#7f8c9a")
	return theme{
		user:       lipgloss.NewStyle().Foreground(mint).Bold(true),
		model:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorText:  lipgloss.NewStyle().Foreground(pink),
		muted:      lipgloss.NewStyle().Foreground(muted),
		status:     lipgloss.NewStyle().Foreground(mint).Bold(true),
		busy:       lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")).Bold(true),
		suggestion: lipgloss.NewStyle().Foreground(muted).Italic(true),
		inputPanel: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(blue).Padding(0, 1),
	}
}

type changedMsg struct{}

type doneMsg struct {
	action string
	err    error
}

// Model is the bubbletea model for a chat session.
type Model struct {
	chat        *chat.Controller
	changes     <-chan struct{}
	unsubscribe func()

	input    textinput.Model
	timeline viewport.Model
	theme    theme

	view    chat.View
	lastErr string
	width   int
	height  int
}

// New returns a model bound to c. It stays subscribed to c until Close.
func New(c *chat.Controller) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.Placeholder = "Ask JENESI anything..."
	input.CharLimit = 4000
	input.Focus()

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 3

	changes, unsubscribe := c.Subscribe()
	m := Model{
		chat:        c,
		changes:     changes,
		unsubscribe: unsubscribe,
		input:       input,
		timeline:    timeline,
		theme:       newTheme(),
	}
	m.refresh()
	return m
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, c *chat.Controller) error {
	m := New(c)
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Close stops listening for controller changes.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForChange())
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func (m Model) run(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{action: action, err: fn(context.Background())}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.render()
	case changedMsg:
		m.refresh()
		cmds = append(cmds, m.waitForChange())
	case doneMsg:
		if msg.err != nil {
			logger.L.Info("chat action failed", "action", msg.action, "error", msg.err)
			m.lastErr = fmt.Sprintf("%s: %v", msg.action, msg.err)
		}
	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
		m.checkScroll()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := m.input.Value()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			m.input.Reset()
			m.lastErr = ""
			return m, m.run("send", func(ctx context.Context) error { return m.chat.Send(ctx, text) })
		case "ctrl+r":
			m.lastErr = ""
			return m, m.run("retry", m.chat.Retry)
		case "ctrl+g":
			m.lastErr = ""
			return m, m.run("regenerate", m.chat.Regenerate)
		case "ctrl+l":
			m.lastErr = ""
			m.chat.Clear()
			return m, nil
		case "ctrl+s":
			id := m.lastReply()
			if id == "" {
				return m, nil
			}
			return m, m.run("speak", func(ctx context.Context) error { return m.chat.Speak(ctx, id) })
		case "pgup":
			m.timeline.LineUp(m.timeline.Height / 2)
			m.checkScroll()
			return m, nil
		case "pgdown":
			m.timeline.LineDown(m.timeline.Height / 2)
			m.checkScroll()
			return m, nil
		case "up":
			m.timeline.LineUp(1)
			m.checkScroll()
			return m, nil
		case "down":
			m.timeline.LineDown(1)
			m.checkScroll()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// checkScroll reports the viewport position. When older entries are loaded
// the offset moves down by the height of the prepended lines, keeping the
// previously topmost line in place.
func (m *Model) checkScroll() {
	r := m.chat.Scroll(window.ScrollSignal{AtTop: m.timeline.AtTop(), AtBottom: m.timeline.AtBottom()})
	if !r.Grew {
		m.view.ScrolledUp = r.ScrolledUp
		return
	}
	oldLines := m.timeline.TotalLineCount()
	offset := m.timeline.YOffset
	m.pull()
	m.timeline.SetContent(m.renderTimeline())
	m.timeline.SetYOffset(offset + window.AnchorOffset(oldLines, m.timeline.TotalLineCount()))
}

// lastReply returns the id of the newest settled reply.
func (m Model) lastReply() string {
	for i := len(m.view.Messages) - 1; i >= 0; i-- {
		msg := m.view.Messages[i]
		if msg.Role == history.RoleModel && !msg.IsStreaming && !msg.IsError {
			return msg.ID
		}
	}
	return ""
}

func (m *Model) pull() {
	v, err := m.chat.View()
	if err != nil {
		logger.L.Error("window snapshot failed", "error", err)
		m.lastErr = err.Error()
		return
	}
	m.view = v
}

func (m *Model) refresh() {
	m.pull()
	m.render()
}

func (m *Model) resize() {
	m.input.Width = max(20, m.width-8)
	m.timeline.Width = max(20, m.width)
	m.timeline.Height = max(3, m.height-7)
}

func (m *Model) render() {
	offset := m.timeline.YOffset
	m.timeline.SetContent(m.renderTimeline())
	if m.view.ScrolledUp {
		m.timeline.SetYOffset(offset)
	} else {
		m.timeline.GotoBottom()
	}
}

func (m Model) renderTimeline() string {
	width := max(20, m.timeline.Width-2)
	body := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	if m.view.HasOlder {
		b.WriteString(m.theme.muted.Render(fmt.Sprintf("↑ %d earlier messages", m.view.Total-len(m.view.Messages))))
		b.WriteString("\n\n")
	}
	for _, msg := range m.view.Messages {
		stamp := msg.Timestamp.Local().Format("15:04")
		switch msg.Role {
		case history.RoleUser:
			b.WriteString(m.theme.user.Render("You") + " " + m.theme.muted.Render(stamp))
		default:
			label := "JENESI"
			if !msg.IsError && !msg.IsStreaming {
				label += " " + intent.Classify(msg.Text).Icon()
			}
			if msg.ID == m.view.Playing {
				label += " ♪"
			}
			b.WriteString(m.theme.model.Render(label) + " " + m.theme.muted.Render(stamp))
		}
		b.WriteString("\n")
		text := msg.Text
		if msg.IsStreaming {
			text += "▍"
		}
		if msg.IsError {
			b.WriteString(m.theme.errorText.Render(body.Render(text)))
		} else {
			b.WriteString(body.Render(text))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// statusLabel names the session state for the status line.
func statusLabel(s chat.State) string {
	switch s {
	case chat.StateDispatched:
		return "Processing…"
	case chat.StateStreaming:
		return "Streaming…"
	}
	return "Online"
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.timeline.View())
	b.WriteString("\n")

	label := statusLabel(m.view.State)
	if m.view.State.Active() {
		b.WriteString(m.theme.busy.Render("● " + label))
	} else {
		b.WriteString(m.theme.status.Render("● " + label))
	}
	if m.lastErr != "" {
		b.WriteString("  " + m.theme.errorText.Render(m.lastErr))
	}
	b.WriteString("\n")

	if !m.view.State.Active() {
		b.WriteString(m.theme.suggestion.Render(strings.Join(intent.Suggestions(m.input.Value()), " · ")))
	}
	b.WriteString("\n")
	b.WriteString(m.theme.inputPanel.Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.theme.muted.Render("enter send · ctrl+r retry · ctrl+g regenerate · ctrl+l clear · ctrl+s speak · esc quit"))
	return b.String()
}
