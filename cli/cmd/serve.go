package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/iox"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/queue"
	"github.com/pithecene-io/tether/server"
	"github.com/pithecene-io/tether/types"
)

// Exit codes for serve.
const (
	exitServeFailed = 1
	exitBadConfig   = 2
)

// snapshotInterval is how often serve refreshes the metrics file.
const snapshotInterval = time.Second

// ServeCommand returns the serve command. It creates the session queues and
// answers commands with the reference graphics handler until the client
// terminates the session or the process is signalled.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Host a bridge session with the reference handler",
		Flags:  SessionFlags(),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitBadConfig)
	}
	logger, meta, err := newLogger(c, cfg, types.RoleServer)
	if err != nil {
		return cli.Exit(err.Error(), exitBadConfig)
	}
	defer iox.DiscardErr(logger.Sync)

	m := metrics.NewCollector(cfg.Bridge.ThreadSafetyPolicy, "shm", meta.SessionID, string(meta.Role))

	pair, err := queue.OpenPair(
		cfg.Transport.Dir, cfg.Transport.Session,
		cfg.Transport.CommandQueueBytes, cfg.Transport.ResponseQueueBytes,
		true, cfg.QueueOptions(),
	)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create session queues: %v", err), exitServeFailed)
	}
	defer func() {
		_ = pair.Release()
		if err := queue.RemovePair(cfg.Transport.Dir, cfg.Transport.Session); err != nil {
			logger.Warn("failed to remove session queues", map[string]any{"error": err.Error()})
		}
	}()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if host, err := openChannelHost(cfg.Transport.Dir, cfg.Transport.Session, logger, m); err != nil {
		logger.Warn("message channel unavailable", map[string]any{"error": err.Error()})
	} else {
		defer iox.DiscardErr(host.Close)
		go func() {
			if err := host.run(ctx); err != nil {
				logger.Warn("message channel stopped", map[string]any{"error": err.Error()})
			}
		}()
	}

	srv := server.New(pair, server.NewReference(logger), logger, m)

	logger.Info("serving", map[string]any{
		"dir":     cfg.Transport.Dir,
		"session": cfg.Transport.Session,
	})

	if path := cfg.Transport.MetricsFile; path != "" {
		go writeSnapshots(ctx, path, pair, m, logger)
	}

	err = srv.Serve(ctx)
	if path := cfg.Transport.MetricsFile; path != "" {
		if werr := metrics.WriteFile(path, snapshot(pair, m)); werr != nil {
			logger.Warn("failed to write metrics file", map[string]any{"error": werr.Error()})
		}
	}

	st := srv.Stats()
	fields := map[string]any{
		"commands":  st.Commands,
		"responses": st.Responses,
		"malformed": st.Malformed,
	}
	switch {
	case err == nil, errors.Is(err, server.ErrTerminated):
		logger.Info("session ended", fields)
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("interrupted", fields)
		return nil
	default:
		fields["error"] = err.Error()
		logger.Error("serve failed", fields)
		return cli.Exit(fmt.Sprintf("serve failed: %v", err), exitServeFailed)
	}
}

func snapshot(pair *queue.Pair, m *metrics.Collector) metrics.Snapshot {
	qs := pair.Responses.Stats()
	m.AbsorbQueueStats(qs.Congested, qs.HighWatermark, qs.Capacity)
	return m.Snapshot()
}

func writeSnapshots(ctx context.Context, path string, pair *queue.Pair, m *metrics.Collector, logger *log.Logger) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := metrics.WriteFile(path, snapshot(pair, m)); err != nil {
				logger.Warn("failed to write metrics file", map[string]any{"error": err.Error()})
			}
		}
	}
}
