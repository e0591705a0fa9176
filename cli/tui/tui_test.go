package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/tether/metrics"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"stats", true},
		{"ping", false},
		{"serve", false},
		{"version", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			if got := IsTUISupported(tt.viewType); got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestRun_RequiresSource(t *testing.T) {
	if err := Run(ViewStats, nil); err == nil {
		t.Error("Run without a source succeeded")
	}
	if err := Run("ping", func() (metrics.Snapshot, error) { return metrics.Snapshot{}, nil }); err == nil {
		t.Error("Run accepted an unsupported view")
	}
}

func TestStatsModel_Updates(t *testing.T) {
	snap := metrics.Snapshot{CommandsSent: 42, Timeouts: 3, SessionID: "s-1", Role: "client"}
	m := NewStatsModel(func() (metrics.Snapshot, error) { return snap, nil })

	if v := m.View(); !strings.Contains(v, "loading") {
		t.Errorf("initial view = %q", v)
	}

	next, _ := m.Update(snapshotMsg{snap: snap})
	v := next.View()
	for _, want := range []string{"42", "Timeouts", "s-1", "client"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}

	// A failed refresh keeps the last good snapshot.
	next, _ = next.Update(snapshotMsg{err: errors.New("gone")})
	v = next.View()
	if !strings.Contains(v, "42") || !strings.Contains(v, "refresh failed") {
		t.Errorf("view after failed refresh = %q", v)
	}
}

func TestStatsModel_Quit(t *testing.T) {
	m := NewStatsModel(func() (metrics.Snapshot, error) { return metrics.Snapshot{}, nil })
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("quit key returned no command")
	}
	if next.View() != "" {
		t.Error("view not cleared after quit")
	}
}

func TestRenderStatsStatic(t *testing.T) {
	out := RenderStatsStatic(metrics.Snapshot{CacheHits: 7, CacheEntries: 2})
	if !strings.Contains(out, "Cache") || !strings.Contains(out, "7") {
		t.Errorf("static render = %q", out)
	}
}
