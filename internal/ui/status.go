package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/karaoke/internal/tasks"
)

// historySize bounds how many recent messages the viewer shows.
const historySize = 8

// StatusModel renders the live conversion status stream in the terminal.
type StatusModel struct {
	ctx      context.Context
	baseURL  string
	updates  chan tasks.StatusUpdate
	spinner  spinner.Model
	progress progress.Model
	percent  int
	history  []tasks.StatusUpdate
	closed   bool
	err      error
}

// NewStatusModel creates a status viewer for the service at baseURL.
func NewStatusModel(ctx context.Context, baseURL string) *StatusModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.title

	return &StatusModel{
		ctx:      ctx,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		updates:  make(chan tasks.StatusUpdate, 50),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

// Init starts the SSE consumer and the spinner.
func (m *StatusModel) Init() tea.Cmd {
	go func() {
		if err := StreamStatus(m.ctx, m.baseURL, m.updates); err != nil {
			// Surfaced through the closed channel on the next read.
			m.err = err
		}
	}()

	return tea.Batch(m.spinner.Tick, m.waitForUpdate())
}

// waitForUpdate returns a command that blocks on the next stream event.
func (m *StatusModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.updates
		if !ok {
			if m.err != nil {
				return streamErrorMsg(m.err)
			}
			return streamClosedMsg()
		}
		return statusUpdateMsg(update)
	}
}

// Update handles messages and key presses.
func (m *StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case Msg:
		switch msg.kind {
		case MsgStatusUpdate:
			update := msg.data.(tasks.StatusUpdate)
			m.history = append(m.history, update)
			if len(m.history) > historySize {
				m.history = m.history[len(m.history)-historySize:]
			}
			if update.Progress > 0 {
				m.percent = update.Progress
			}
			return m, m.waitForUpdate()

		case MsgStreamClosed:
			m.closed = true
			return m, nil

		case MsgStreamError:
			m.err = msg.data.(error)
			m.closed = true
			return m, nil
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the spinner, progress bar, and recent messages.
func (m *StatusModel) View() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("Karaoke conversion status"))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("stream error: %v", m.err)))
		b.WriteString("\n")
	case m.closed:
		b.WriteString(styles.warn.Render("stream closed"))
		b.WriteString("\n")
	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" listening\n")
	}

	if m.percent > 0 {
		b.WriteString("\n")
		b.WriteString(m.progress.ViewAs(float64(m.percent) / 100))
		b.WriteString("\n")
	}

	if len(m.history) > 0 {
		b.WriteString("\n")
		for _, update := range m.history {
			line := update.Message
			if update.Duration != "" {
				line += " (" + update.Duration + ")"
			}
			if update.Progress > 0 {
				line += fmt.Sprintf(" [%d%%]", update.Progress)
			}
			b.WriteString(styles.ok.Render("•"))
			b.WriteString(" " + line + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(styles.help.Render("q: quit"))
	b.WriteString("\n")

	return b.String()
}
