package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chisel-dev/chisel/pkg/events"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Padding(0, 1)
)

type answerMsg string
type agentErrMsg struct{ err error }
type busEventMsg events.Event

// chatModel is used through a pointer everywhere so bubbletea never
// copies model state between Update calls.
type chatModel struct {
	ctx     context.Context
	sess    *session
	updates <-chan events.Event

	viewport viewport.Model
	textarea textarea.Model

	transcript []string
	width      int
	height     int
	busy       bool
	confirm    bool
	err        error
}

func runChat(ctx context.Context) error {
	sess, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer sess.close(ctx)

	updates, cancel := sess.bus.Subscribe()
	defer cancel()

	p := tea.NewProgram(newChatModel(ctx, sess, updates))
	_, err = p.Run()
	return err
}

func newChatModel(ctx context.Context, sess *session, updates <-chan events.Event) *chatModel {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent("Type a message to start. /exit to quit.")

	return &chatModel{
		ctx:      ctx,
		sess:     sess,
		updates:  updates,
		viewport: vp,
		textarea: ta,
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForEvent(m.updates))
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, tiCmd, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.confirm {
				m.confirm = false
				return m, nil
			}
			m.confirm = true
			return m, nil
		case tea.KeyEnter:
			if m.confirm {
				return m, nil
			}
			return m.sendMessage(cmds)
		default:
			if m.confirm {
				switch msg.String() {
				case "y", "Y":
					return m, tea.Quit
				case "n", "N":
					m.confirm = false
				}
			}
		}

	case busEventMsg:
		if line := renderEvent(events.Event(msg)); line != "" {
			m.appendLine(toolStyle.Render(line))
		}
		cmds = append(cmds, waitForEvent(m.updates))

	case answerMsg:
		m.busy = false
		m.appendLine(agentStyle.Render("Agent: ") + "\n" + string(msg) + "\n")

	case agentErrMsg:
		m.busy = false
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m *chatModel) sendMessage(cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" || m.busy {
		return m, tea.Batch(cmds...)
	}
	if v == "/exit" {
		return m, tea.Quit
	}

	m.err = nil
	m.busy = true
	m.textarea.Reset()
	m.appendLine(userStyle.Render("User: ") + "\n" + v + "\n")

	sess := m.sess
	ctx := m.ctx
	cmds = append(cmds, func() tea.Msg {
		answer, err := sess.agent.Run(ctx, v)
		if err != nil {
			return agentErrMsg{err}
		}
		return answerMsg(answer)
	})
	return m, tea.Batch(cmds...)
}

func (m *chatModel) appendLine(line string) {
	m.transcript = append(m.transcript, line)
	m.viewport.SetContent(strings.Join(m.transcript, "\n") + "\n")
	m.viewport.GotoBottom()
}

func (m *chatModel) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("Error: %v", m.err))
	}

	if m.confirm {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			titleStyle.Render("Confirm Exit"),
			"",
			"Quit? (y/n)",
			"Quitting removes the session sandbox.",
			errorView,
		)
	}

	status := ""
	if m.busy {
		status = toolStyle.Render("working...")
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("chisel"),
		m.viewport.View(),
		status,
		errorView,
		m.textarea.View(),
	)
}

// renderEvent maps bus events to one-line progress notes in the
// transcript. Turn events are noise at this granularity.
func renderEvent(ev events.Event) string {
	switch ev.Type {
	case events.TypeToolStarted:
		if name, ok := ev.Fields["tool"].(string); ok {
			return fmt.Sprintf("[tool: %s]", name)
		}
	case events.TypeCompactionDone:
		return "[history compacted]"
	case events.TypeCompactionDegrade:
		return "[history compacted without summary]"
	}
	return ""
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return busEventMsg(ev)
	}
}
