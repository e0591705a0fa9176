package cmd

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tether/bridge"
	"github.com/pithecene-io/tether/cli/render"
	"github.com/pithecene-io/tether/iox"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/queue"
	"github.com/pithecene-io/tether/types"
)

// Query arguments: adapter 0, HAL device, X8R8G8B8 display format, render
// target usage on a surface.
const (
	queryDevType       = 1
	queryAdapterFormat = 22
	queryUsage         = 0x1
	queryResourceType  = 1
	queryFormatOK      = 21
	queryFormatMissing = 0x7FFF
)

// PingResponse is the response for the ping command.
type PingResponse struct {
	Session string           `json:"session" yaml:"session"`
	Count   int              `json:"count" yaml:"count"`
	Min     time.Duration    `json:"min_ns" yaml:"min_ns"`
	Max     time.Duration    `json:"max_ns" yaml:"max_ns"`
	Mean    time.Duration    `json:"mean_ns" yaml:"mean_ns"`
	Query   *QueryResult     `json:"query,omitempty" yaml:"query,omitempty"`
	Notify  *NotifyResult    `json:"notify,omitempty" yaml:"notify,omitempty"`
	Stats   metrics.Snapshot `json:"stats" yaml:"stats"`
}

// QueryResult summarizes the cached adapter queries issued by --query.
type QueryResult struct {
	Adapters      uint32 `json:"adapters" yaml:"adapters"`
	Description   string `json:"description" yaml:"description"`
	FormatStatus  string `json:"format_status" yaml:"format_status"`
	MissingStatus string `json:"missing_status" yaml:"missing_status"`
}

// NotifyResult summarizes the channel traffic sent by --notify.
type NotifyResult struct {
	Peer      uint32 `json:"peer" yaml:"peer"`
	Focus     int    `json:"focus_events" yaml:"focus_events"`
	Forwarded int    `json:"forwarded" yaml:"forwarded"`
	Toggles   int    `json:"ui_toggles" yaml:"ui_toggles"`
}

// PingCommand returns the ping command. It attaches to a running session as
// the client and measures round trips.
func PingCommand() *cli.Command {
	flags := append(SessionFlags(), ReadOnlyFlags()...)
	flags = append(flags,
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "Number of round trips",
			Value:   3,
		},
		&cli.BoolFlag{
			Name:  "query",
			Usage: "Also issue cached adapter queries",
		},
		&cli.BoolFlag{
			Name:  "notify",
			Usage: "Also send focus and overlay events over the message channel",
		},
		&cli.BoolFlag{
			Name:  "terminate",
			Usage: "Ask the server to end the session afterwards",
		},
	)
	return &cli.Command{
		Name:   "ping",
		Usage:  "Measure round trips to a bridge session",
		Flags:  flags,
		Action: pingAction,
	}
}

func pingAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for ping command", 1)
	}
	count := c.Int("count")
	if count < 1 {
		return cli.Exit("--count must be at least 1", exitBadConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitBadConfig)
	}
	logger, meta, err := newLogger(c, cfg, types.RoleClient)
	if err != nil {
		return cli.Exit(err.Error(), exitBadConfig)
	}
	defer iox.DiscardErr(logger.Sync)

	pair, err := queue.OpenPair(
		cfg.Transport.Dir, cfg.Transport.Session,
		cfg.Transport.CommandQueueBytes, cfg.Transport.ResponseQueueBytes,
		false, cfg.QueueOptions(),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("no session %q in %s: %v", cfg.Transport.Session, cfg.Transport.Dir, err), exitServeFailed)
	}
	defer iox.DiscardErr(pair.Detach)

	opts := cfg.BridgeOptions()
	opts.Logger = logger
	opts.Metrics = metrics.NewCollector(cfg.Bridge.ThreadSafetyPolicy, "shm", meta.SessionID, string(meta.Role))
	client := bridge.NewClient(pair, opts)

	resp, err := ping(c.Context, client, count, c.Bool("query"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("ping failed: %v", err), exitServeFailed)
	}
	resp.Session = cfg.Transport.Session

	if c.Bool("notify") {
		resp.Notify, err = notify(c.Context, cfg.Transport.Dir, cfg.Transport.Session, logger, opts.Metrics)
		if err != nil {
			return cli.Exit(fmt.Sprintf("notify failed: %v", err), exitServeFailed)
		}
	}

	if c.Bool("terminate") {
		if err := client.Terminate(c.Context); err != nil {
			logger.Warn("terminate failed", map[string]any{"error": err.Error()})
		}
	}
	resp.Stats = client.Stats()
	return r.Render(resp)
}

// ping runs count round trips and, with query set, a few cached queries.
func ping(ctx context.Context, client *bridge.Client, count int, query bool) (*PingResponse, error) {
	resp := &PingResponse{Count: count}
	var total time.Duration
	for i := range count {
		d, err := client.Ping(ctx)
		if err != nil {
			return nil, err
		}
		total += d
		if i == 0 || d < resp.Min {
			resp.Min = d
		}
		if d > resp.Max {
			resp.Max = d
		}
	}
	resp.Mean = total / time.Duration(count)

	if !query {
		return resp, nil
	}
	n, err := client.GetAdapterCount(ctx)
	if err != nil {
		return nil, err
	}
	ident, err := client.GetAdapterIdentifier(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(ident, 0); i >= 0 {
		ident = ident[:i]
	}
	ok := client.CheckDeviceFormat(ctx, 0, queryDevType, queryAdapterFormat, queryUsage, queryResourceType, queryFormatOK)
	// The repeat is answered from the cache.
	_ = client.CheckDeviceFormat(ctx, 0, queryDevType, queryAdapterFormat, queryUsage, queryResourceType, queryFormatOK)
	missing := client.CheckDeviceFormat(ctx, 0, queryDevType, queryAdapterFormat, queryUsage, queryResourceType, queryFormatMissing)

	resp.Query = &QueryResult{
		Adapters:      n,
		Description:   string(ident),
		FormatStatus:  ok.String(),
		MissingStatus: missing.String(),
	}
	return resp, nil
}
