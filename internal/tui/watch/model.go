package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxRows = 200

type itemMsg Item

type tickMsg time.Time

type closedMsg struct{}

// Model is the BubbleTea model for `relayd watch --tui`.
type Model struct {
	endpoint string
	items    <-chan Item
	now      func() time.Time

	width  int
	height int

	started        time.Time
	total          int
	byType         map[string]int
	lastSeq        float64
	activeSessions float64
	haveHeartbeat  bool
	lastHeartbeat  time.Time
	connected      bool

	recent   []Item
	table    table.Model
	activity Activity
	theme    Theme
}

// NewModel builds a dashboard fed from items, typically the channel
// Subscribe writes to.
func NewModel(endpoint string, items <-chan Item) Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 8},
			{Title: "Topic", Width: 12},
			{Title: "Type", Width: 18},
			{Title: "Data", Width: 48},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		endpoint:  endpoint,
		items:     items,
		now:       time.Now,
		started:   time.Now(),
		byType:    make(map[string]int),
		connected: true,
		table:     t,
		theme:     NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForItem(m.items),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

func waitForItem(ch <-chan Item) tea.Cmd {
	return func() tea.Msg {
		it, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return itemMsg(it)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 6)
		if h := msg.Height - 10; h > 3 {
			m.table.SetHeight(h)
		}

	case tickMsg:
		m.activity.Decay(m.now())
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case itemMsg:
		m.record(Item(msg))
		return m, waitForItem(m.items)

	case closedMsg:
		m.connected = false
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) record(it Item) {
	m.total++
	m.byType[it.Notification.Type]++
	m.activity.OnItem(m.now())

	if it.Notification.Type == "heartbeat" {
		m.haveHeartbeat = true
		m.lastHeartbeat = it.Received
		if v, ok := it.Notification.Data["sequence"].(float64); ok {
			m.lastSeq = v
		}
		if v, ok := it.Notification.Data["active_sessions"].(float64); ok {
			m.activeSessions = v
		}
	}

	// Newest first.
	m.recent = append([]Item{it}, m.recent...)
	if len(m.recent) > maxRows {
		m.recent = m.recent[:maxRows]
	}

	rows := make([]table.Row, 0, len(m.recent))
	for _, r := range m.recent {
		topic := r.Topic
		if topic == "" {
			topic = "-"
		}
		rows = append(rows, table.Row{
			time.Unix(r.Notification.Timestamp, 0).Format("15:04:05"),
			topic,
			r.Notification.Type,
			Summary(r.Notification.Data),
		})
	}
	m.table.SetRows(rows)
}

// Total is the number of notifications received.
func (m Model) Total() int { return m.total }

// Count is the number of notifications received with the given type.
func (m Model) Count(notifType string) int { return m.byType[notifType] }

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.endpoint + "..."
	}

	status := m.theme.Session.Render("CONNECTED")
	if !m.connected {
		status = m.theme.Failed.Render("DISCONNECTED")
	}

	heartbeat := "none yet"
	if m.haveHeartbeat {
		heartbeat = fmt.Sprintf("#%d, %d active sessions, %s ago",
			int64(m.lastSeq), int64(m.activeSessions),
			formatDuration(m.now().Sub(m.lastHeartbeat)))
	}

	header := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("RELAYD WATCH")+" "+m.theme.Dim.Render(m.endpoint),
		fmt.Sprintf(" %s  received %d  watching %s  %s",
			status, m.total, formatDuration(m.now().Sub(m.started)), m.activity.Render(m.theme)),
		" heartbeat: "+m.theme.Highlight.Render(heartbeat),
		" "+m.typeCounts(),
	)

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Scroll")

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Border.Width(m.width-6).Render(header),
			m.table.View(),
			help,
		),
	)
}

func (m Model) typeCounts() string {
	if len(m.byType) == 0 {
		return m.theme.Dim.Render("no notifications")
	}
	types := make([]string, 0, len(m.byType))
	for t := range m.byType {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s:%d", m.theme.TypeStyle(t).Render(t), m.byType[t]))
	}
	return strings.Join(parts, "  ")
}
