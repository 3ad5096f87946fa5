// Package tui is the terminal dashboard behind `mqdeckctl dashboard`.
// It is built on the bubbletea/lipgloss stack: one tab per entity kind,
// refreshed every 5 seconds through the broker API.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mqdeck/mqdeck/broker"
	"github.com/mqdeck/mqdeck/entity"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("27")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("27")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			PaddingRight(1)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingRight(1)

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingRight(1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true).
			PaddingLeft(1)
)

const refreshInterval = 5 * time.Second

// tickMsg triggers a periodic refresh.
type tickMsg time.Time

// dataMsg carries freshly fetched collections keyed by kind.
type dataMsg map[entity.Kind][]entity.Entity

// errMsg carries a fetch error for the status bar.
type errMsg error

// Model is the top-level bubbletea model for the dashboard.
type Model struct {
	api       broker.API
	activeTab int
	data      map[entity.Kind][]entity.Entity
	width     int
	height    int
	err       error
	loading   bool
	lastFetch time.Time
}

// New returns a Model backed by the given broker client.
func New(api broker.API) Model {
	return Model{
		api:     api,
		data:    map[entity.Kind][]entity.Entity{},
		loading: true,
	}
}

// Init starts the periodic tick and issues the first fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), fetchAll(m.api))
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchAll loads every collection in one command.
func fetchAll(api broker.API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		out := make(map[entity.Kind][]entity.Entity, len(entity.Kinds))
		for _, kind := range entity.Kinds {
			rows, err := api.List(ctx, kind)
			if err != nil {
				return errMsg(fmt.Errorf("%s: %w", kind, err))
			}
			out[kind] = rows
		}
		return dataMsg(out)
	}
}

// Update processes messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			m.activeTab = (m.activeTab + 1) % len(entity.Kinds)
		case "shift+tab", "left", "h":
			m.activeTab = (m.activeTab - 1 + len(entity.Kinds)) % len(entity.Kinds)
		case "1", "2", "3", "4", "5", "6":
			m.activeTab = int(key[0] - '1')
		case "r":
			m.loading = true
			m.err = nil
			return m, fetchAll(m.api)
		}
		return m, nil

	case tickMsg:
		m.loading = true
		return m, tea.Batch(tick(), fetchAll(m.api))

	case dataMsg:
		m.loading = false
		m.err = nil
		m.data = msg
		m.lastFetch = time.Now()
		return m, nil

	case errMsg:
		m.loading = false
		m.err = msg
		return m, nil
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("  mqdeck dashboard  "))
	sb.WriteString("\n")

	var tabs []string
	for i, kind := range entity.Kinds {
		label := fmt.Sprintf(" %d: %s ", i+1, kind)
		if i == m.activeTab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}
	sb.WriteString(strings.Join(tabs, ""))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	contentHeight := m.height - 5
	if contentHeight < 1 {
		contentHeight = 1
	}
	sb.WriteString(clipLines(m.renderActiveTab(), contentHeight))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())

	return sb.String()
}

func (m Model) renderActiveTab() string {
	kind := entity.Kinds[m.activeTab]
	rows := m.data[kind]
	if len(rows) == 0 {
		return dimStyle.Render(fmt.Sprintf("  no %s entities", kind))
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(pad("NAME", 28)))
	sb.WriteString(headerStyle.Render(pad("NAMESPACE", 16)))
	sb.WriteString(headerStyle.Render(pad("NODE", 10)))
	sb.WriteString(headerStyle.Render(pad("STATE", 10)))
	sb.WriteString(headerStyle.Render("MESSAGES"))
	sb.WriteString("\n")
	for _, e := range rows {
		style := rowStyle
		state := "enabled"
		if !e.Enabled {
			style = disabledStyle
			state = "disabled"
		}
		sb.WriteString(style.Render(pad(e.Name, 28)))
		sb.WriteString(style.Render(pad(e.Namespace, 16)))
		sb.WriteString(style.Render(pad(e.NodeID, 10)))
		sb.WriteString(style.Render(pad(state, 10)))
		sb.WriteString(style.Render(metricSummary(e.Metrics)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) renderStatus() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	parts := []string{}
	if !m.lastFetch.IsZero() {
		parts = append(parts, fmt.Sprintf("last refresh: %s", m.lastFetch.Format("15:04:05")))
	}
	if m.loading {
		parts = append(parts, "refreshing…")
	}
	parts = append(parts, "q: quit  tab: next tab  r: refresh")
	return statusBarStyle.Render(strings.Join(parts, "  |  "))
}

func metricSummary(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return "-"
	}
	if v, ok := metrics["messagesIn"]; ok {
		return fmt.Sprintf("in %.0f / out %.0f", v, metrics["messagesOut"])
	}
	return fmt.Sprintf("%d metrics", len(metrics))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s[:width-1] + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}

func clipLines(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}
