package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tether/cli/render"
	"github.com/pithecene-io/tether/cli/tui"
	"github.com/pithecene-io/tether/metrics"
)

// TUIReadOnlyFlags returns flags for read-only commands that support TUI.
func TUIReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag, TUIFlag}
}

// StatsCommand returns the stats command. It reads the metrics file a
// running serve process refreshes.
func StatsCommand() *cli.Command {
	flags := append(TUIReadOnlyFlags(),
		&cli.StringFlag{
			Name:     "file",
			Usage:    "Metrics snapshot written by serve (transport.metrics_file)",
			Required: true,
			EnvVars:  []string{"TETHER_METRICS_FILE"},
		},
	)
	return &cli.Command{
		Name:   "stats",
		Usage:  "Show bridge session metrics",
		Flags:  flags,
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	path := c.String("file")
	src := func() (metrics.Snapshot, error) { return metrics.ReadFile(path) }

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStats, src)
	}

	s, err := src()
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read metrics: %v", err), 1)
	}
	return r.Render(s)
}
