package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/tether/metrics"
)

// RefreshInterval is how often the stats view re-reads its source.
const RefreshInterval = time.Second

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
}

type tickMsg time.Time

type snapshotMsg struct {
	snap metrics.Snapshot
	err  error
}

// StatsModel is a Bubble Tea model for the session counters view.
type StatsModel struct {
	src      Source
	snap     metrics.Snapshot
	err      error
	loaded   bool
	width    int
	quitting bool
}

// NewStatsModel creates a stats model reading from src.
func NewStatsModel(src Source) StatsModel {
	return StatsModel{src: src}
}

func (m StatsModel) load() tea.Cmd {
	return func() tea.Msg {
		s, err := m.src()
		return snapshotMsg{snap: s, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return tea.Batch(m.load(), tick())
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.load(), tick())

	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.loaded = true
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, m.load()
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}
	help := HelpStyle.Render("r refresh • q quit")
	if !m.loaded {
		if m.err != nil {
			return ErrorStyle.Render(m.err.Error()) + "\n" + help
		}
		return "loading…\n" + help
	}

	s := m.snap
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Bridge Session"))
	b.WriteString("\n")
	b.WriteString(field("session", s.SessionID))
	b.WriteString(field("role", s.Role))
	b.WriteString(field("transport", s.Transport))
	b.WriteString(field("lock", s.LockPolicy))

	b.WriteString(SectionStyle.Render("Round trips"))
	b.WriteString("\n")
	b.WriteString(row(
		statBox("Commands", s.CommandsSent, false),
		statBox("Responses", s.ResponsesReceived, false),
		statBox("Timeouts", s.Timeouts, true),
		statBox("Stale", s.StaleDiscarded, true),
	))
	b.WriteString(row(
		statBox("Remote failures", s.RemoteFailures, true),
		statBox("Transport errors", s.TransportErrors, true),
		statBox("Protocol errors", s.ProtocolErrors, true),
	))

	b.WriteString(SectionStyle.Render("Cache"))
	b.WriteString("\n")
	b.WriteString(row(
		statBox("Hits", s.CacheHits, false),
		statBox("Misses", s.CacheMisses, false),
		statBox("Collisions", s.CacheCollisions, true),
		statBox("Entries", s.CacheEntries, false),
	))

	b.WriteString(SectionStyle.Render("Queue and input"))
	b.WriteString("\n")
	b.WriteString(row(
		statBox("Congested", s.QueueCongested, true),
		statBox("High water", s.QueueHighWatermark, false),
		statBox("Channel sent", s.ChannelSent, false),
		statBox("Channel dropped", s.ChannelDropped, true),
	))
	b.WriteString(row(
		statBox("Suppressed", s.InputSuppressed, false),
		statBox("Replayed", s.InputReplayed, false),
	))

	if m.err != nil {
		b.WriteString(ErrorStyle.Render("refresh failed: " + m.err.Error()))
		b.WriteString("\n")
	}
	return b.String() + help
}

func field(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value) + "\n"
}

func row(boxes ...string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...) + "\n"
}

func statBox(label string, value int64, bad bool) string {
	color := CountColor(value, bad)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	return StatBoxStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr))
}

// RunStatsTUI runs the stats TUI.
func RunStatsTUI(src Source) error {
	p := tea.NewProgram(NewStatsModel(src), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatsStatic renders a snapshot without running the program.
func RenderStatsStatic(s metrics.Snapshot) string {
	m := StatsModel{snap: s, loaded: true, width: 80}
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View())
}
