// Package tui provides the interactive terminal dashboard for rpcclient's
// watch subcommand. It is built on the bubbletea/lipgloss stack and renders
// a single table of in-flight calls, refreshed on a fixed tick.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kestrel-systems/rpcsession/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	headerCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			PaddingRight(2)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingRight(2)

	altRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Background(lipgloss.Color("236")).
			PaddingRight(2)

	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(1)
)

const refreshInterval = 250 * time.Millisecond

// Row is one in-flight call's presentation state.
type Row struct {
	Token   uint64
	Payload string
	Status  session.Status
	Reply   string
	Err     string
}

type tickMsg time.Time

// Model is the bubbletea model driving the watch dashboard. It owns no
// network state itself: the caller supplies a refresh function that polls
// the live CallHandles and returns their current presentation rows.
type Model struct {
	endpoint string
	refresh  func() []Row
	rows     []Row
	width    int
	height   int
	sessErr  string
}

// New returns a Model that calls refresh on every tick to rebuild its rows.
func New(endpoint string, refresh func() []Row) Model {
	return Model{endpoint: endpoint, refresh: refresh}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), refreshCmd(m.refresh))
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func refreshCmd(refresh func() []Row) tea.Cmd {
	return func() tea.Msg { return rowsMsg(refresh()) }
}

type rowsMsg []Row

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(tick(), refreshCmd(m.refresh))
	case rowsMsg:
		m.rows = []Row(msg)
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("  rpcclient watch — %s  ", m.endpoint)))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	sb.WriteString(headerCellStyle.Render("ID"))
	sb.WriteString(headerCellStyle.Render("Payload"))
	sb.WriteString(headerCellStyle.Render("Status"))
	sb.WriteString(headerCellStyle.Render("Result"))
	sb.WriteString("\n")

	if len(m.rows) == 0 {
		sb.WriteString(pendingStyle.Render("no in-flight calls"))
		sb.WriteString("\n")
	}
	for i, r := range m.rows {
		style := rowStyle
		if i%2 == 1 {
			style = altRowStyle
		}
		line := fmt.Sprintf("%-6d%-20s", r.Token, r.Payload)
		sb.WriteString(style.Render(line))
		sb.WriteString(statusCell(r))
		sb.WriteString(style.Render(resultCell(r)))
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(statusBarStyle.Render("q: quit"))
	return sb.String()
}

func statusCell(r Row) string {
	switch r.Status {
	case session.StatusOK:
		return okStyle.Render(fmt.Sprintf("%-12s", "Ok"))
	case session.StatusError:
		return errStyle.Render(fmt.Sprintf("%-12s", "Error"))
	case session.StatusCanceled:
		return errStyle.Render(fmt.Sprintf("%-12s", "Canceled"))
	default:
		return pendingStyle.Render(fmt.Sprintf("%-12s", "Pending"))
	}
}

func resultCell(r Row) string {
	if r.Err != "" {
		return r.Err
	}
	return r.Reply
}
