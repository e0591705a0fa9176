package tui

import (
	"fmt"
	"slices"

	"github.com/pithecene-io/tether/metrics"
)

// Source produces the snapshot a view displays. Views call it once at
// start and again on every refresh.
type Source func() (metrics.Snapshot, error)

// ViewStats is the session counters view.
const ViewStats = "stats"

// Run starts the TUI for viewType.
func Run(viewType string, src Source) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	if src == nil {
		return fmt.Errorf("view %s has no data source", viewType)
	}
	return RunStatsTUI(src)
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewStats}
}
