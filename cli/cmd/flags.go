// Package cmd provides CLI commands for the tether binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tether/config"
	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/types"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode (stats only).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, NoColorFlag, TUIFlag}
}

// SessionFlags locate the bridge session shared by serve and ping.
func SessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to tether.yaml or tether.toml",
			EnvVars: []string{"TETHER_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Directory holding the shared queue files (overrides transport.dir)",
		},
		&cli.StringFlag{
			Name:  "session",
			Usage: "Session name (overrides transport.session)",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ULID for log correlation (generated when empty)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (overrides log.level)",
		},
	}
}

// loadConfig resolves the configuration from --config and the override
// flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if v := c.String("dir"); v != "" {
		cfg.Transport.Dir = v
	}
	if v := c.String("session"); v != "" {
		cfg.Transport.Session = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cfg.Transport.Dir == "" {
		cfg.Transport.Dir = os.TempDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr.
func newLogger(c *cli.Context, cfg *config.Config, role types.Role) (*log.Logger, *types.SessionMeta, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	id := c.String("session-id")
	if id == "" {
		id = log.NewSessionID()
	}
	meta := &types.SessionMeta{SessionID: id, Role: role, PID: os.Getpid()}
	return log.New(meta, c.App.ErrWriter, level), meta, nil
}
