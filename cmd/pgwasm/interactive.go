package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/driftdb/pgwasm/bridge"
	"github.com/driftdb/pgwasm/wire"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2D5B88")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	tableStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0E68C"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// historyEntry is one executed statement and its rendered outcome.
type historyEntry struct {
	sql     string
	output  string
	notices []string
	isErr   bool
}

type replModel struct {
	cfg     sessionConfig
	db      *bridge.Bridge
	err     error
	input   textinput.Model
	history []historyEntry
	running bool
	version string

	// noticeMu guards notices, which the bridge callback appends to while a
	// statement runs and the result handler drains.
	noticeMu sync.Mutex
	notices  []string
}

func newReplModel(cfg sessionConfig) *replModel {
	ti := textinput.New()
	ti.Prompt = "sql> "
	ti.Placeholder = "SELECT ..."
	ti.Width = 72
	ti.Focus()
	return &replModel{cfg: cfg, input: ti}
}

type connectedMsg struct {
	err     error
	db      *bridge.Bridge
	version string
}

type queryDoneMsg struct {
	entry historyEntry
}

func (m *replModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.connect)
}

func (m *replModel) connect() tea.Msg {
	ctx := context.Background()
	cfg := m.cfg
	cfg.onNotice = func(f wire.ErrorFields) {
		m.noticeMu.Lock()
		m.notices = append(m.notices, fmt.Sprintf("%s: %s", f.Severity, f.Message))
		m.noticeMu.Unlock()
	}
	db, err := openSession(ctx, cfg)
	if err != nil {
		return connectedMsg{err: err}
	}
	return connectedMsg{db: db, version: db.ParameterStatus("server_version")}
}

// drainNotices returns and clears the notices emitted since the last drain.
func (m *replModel) drainNotices() []string {
	m.noticeMu.Lock()
	defer m.noticeMu.Unlock()
	out := m.notices
	m.notices = nil
	return out
}

func (m *replModel) runStatement(sql string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.db.Query(context.Background(), sql)
		entry := historyEntry{sql: sql}
		switch {
		case err != nil:
			entry.isErr = true
			var srvErr *bridge.ServerError
			if stderrors.As(err, &srvErr) {
				entry.output = srvErr.Error()
				if srvErr.Fields.Hint != "" {
					entry.output += "\nHINT: " + srvErr.Fields.Hint
				}
			} else {
				entry.output = err.Error()
			}
		default:
			entry.output = renderResult(res)
		}
		if notices := m.drainNotices(); len(notices) != 0 {
			entry.notices = notices
		}
		return queryDoneMsg{entry: entry}
	}
}

func (m *replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			if m.db != nil {
				m.db.Close(context.Background())
			}
			return m, tea.Quit

		case "enter":
			sql := strings.TrimSpace(m.input.Value())
			if sql == "" || m.db == nil || m.running {
				return m, nil
			}
			if sql == `\q` || strings.EqualFold(sql, "quit") || strings.EqualFold(sql, "exit") {
				m.db.Close(context.Background())
				return m, tea.Quit
			}
			m.input.Reset()
			m.running = true
			return m, m.runStatement(sql)
		}

	case connectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.db = msg.db
		m.version = msg.version

	case queryDoneMsg:
		m.running = false
		m.history = append(m.history, msg.entry)
		// Keep the scrollback bounded.
		if len(m.history) > 20 {
			m.history = m.history[len(m.history)-20:]
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *replModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pgwasm"))
	b.WriteString(" ")
	b.WriteString(m.cfg.wasmFile)
	if m.version != "" {
		b.WriteString("  (engine " + m.version + ")")
	}
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("ctrl+c quit"))
		return b.String()
	}
	if m.db == nil {
		b.WriteString("Connecting...\n")
		return b.String()
	}

	for _, e := range m.history {
		b.WriteString(promptStyle.Render("sql> " + e.sql))
		b.WriteString("\n")
		for _, n := range e.notices {
			b.WriteString(noticeStyle.Render(n))
			b.WriteString("\n")
		}
		if e.isErr {
			b.WriteString(errorStyle.Render(e.output))
		} else {
			b.WriteString(tableStyle.Render(strings.TrimRight(e.output, "\n")))
		}
		b.WriteString("\n\n")
	}

	if m.running {
		b.WriteString("executing...\n")
	} else {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(`enter run • \q quit • ctrl+c quit`))
	return b.String()
}

func runInteractive(cfg sessionConfig) error {
	p := tea.NewProgram(newReplModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
