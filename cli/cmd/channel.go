//go:build unix

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/tether/input"
	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/msgchan"
	"github.com/pithecene-io/tether/uistate"
)

// channelName names the message channel shared by serve and ping.
const channelName = "global"

// handshakeTimeout bounds how long notify waits for the server end.
const handshakeTimeout = 2 * time.Second

// replayWindow stands in for the game window when notify replays window
// messages. It has no procedure of its own.
type replayWindow struct{}

func (replayWindow) Subclass(input.HWND, input.WndProc) (input.WndProc, func() error, error) {
	return nil, nil, nil
}

// channelHost is the server end of the global message channel. It records
// the game's focus, the overlay's UI flag and forwarded window messages.
type channelHost struct {
	poster *msgchan.DatagramPoster
	ch     *msgchan.Channel
	ui     *uistate.State
	logger *log.Logger
	m      *metrics.Collector

	focused   atomic.Bool
	focus     atomic.Int64
	toggles   atomic.Int64
	forwarded atomic.Int64
}

// openChannelHost binds the server end of session's channel under dir.
func openChannelHost(dir, session string, logger *log.Logger, m *metrics.Collector) (*channelHost, error) {
	p, err := msgchan.ListenDatagram(dir, msgchan.SessionThreadID(session))
	if err != nil {
		return nil, err
	}
	logger = logger.Named("msgchan")
	ch, err := msgchan.NewServer(channelName, p, msgchan.Options{Logger: logger, Metrics: m})
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	h := &channelHost{poster: p, ch: ch, ui: uistate.New(), logger: logger, m: m}
	h.focused.Store(true)

	if _, err := h.ui.Bind(ch); err != nil {
		_ = p.Close()
		return nil, err
	}
	h.ui.Subscribe(func(active bool) {
		m.IncChannelReceived()
		h.toggles.Add(1)
		logger.Info("overlay ui toggled", map[string]any{"active": active})
	})

	focusID, err := ch.Register(msgchan.NameFocusChanged)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	ch.RegisterHandler(focusID, func(a, _ uint64) bool {
		h.focused.Store(a != 0)
		m.IncChannelReceived()
		h.focus.Add(1)
		logger.Info("game focus changed", map[string]any{"focused": a != 0})
		return true
	})
	return h, nil
}

// dispatch hands m to the channel. Unregistered native window messages are
// the client's forwarded window traffic.
func (h *channelHost) dispatch(m msgchan.Message) {
	if h.ch.OnMessage(m.ID, m.A, m.B) {
		return
	}
	if m.ID >= msgchan.FirstRegistered {
		h.logger.Debug("unhandled registered message", map[string]any{"message": m.String()})
		return
	}
	h.m.IncChannelReceived()
	h.forwarded.Add(1)
	h.logger.Debug("window message forwarded", map[string]any{
		"message": input.MessageName(uint32(m.ID)),
		"w_param": m.A,
		"l_param": m.B,
	})
}

// run reads the channel until ctx is done.
func (h *channelHost) run(ctx context.Context) error {
	err := h.poster.Run(ctx, h.dispatch)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *channelHost) Close() error { return h.poster.Close() }

// notify opens the client end of session's channel, completes the
// handshake and replays a focus loss and regain through an input
// interceptor, followed by an overlay UI toggle on and off.
func notify(ctx context.Context, dir, session string, logger *log.Logger, m *metrics.Collector) (*NotifyResult, error) {
	p, err := msgchan.ListenDatagram(dir, msgchan.ThreadID(os.Getpid()))
	if err != nil {
		return nil, err
	}
	defer func() { _ = p.Close() }()

	logger = logger.Named("msgchan")
	ch, err := msgchan.NewClient(channelName, p, msgchan.SessionThreadID(session), msgchan.Options{Logger: logger, Metrics: m})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = p.Run(runCtx, ch.Dispatch) }()

	if err := ch.Handshake(); err != nil {
		return nil, err
	}
	if err := awaitEstablished(ctx, ch); err != nil {
		return nil, err
	}

	ic := input.NewInterceptor(replayWindow{}, input.Options{Channel: ch, Logger: logger, Metrics: m})
	if err := ic.Set(1); err != nil {
		return nil, err
	}
	for _, focused := range []uintptr{0, 1} {
		if err := ic.Deliver(input.WM_ACTIVATEAPP, focused, 0); err != nil {
			return nil, err
		}
	}
	if err := ic.Unset(); err != nil {
		return nil, err
	}
	for _, active := range []bool{true, false} {
		if err := uistate.Toggle(ch, active); err != nil {
			return nil, err
		}
	}
	return &NotifyResult{Peer: uint32(ch.Peer()), Focus: 2, Forwarded: 2, Toggles: 2}, nil
}

func awaitEstablished(ctx context.Context, ch *msgchan.Channel) error {
	deadline := time.NewTimer(handshakeTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for ch.State() != msgchan.Established {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("channel %s: no handshake reply within %s", ch.Name(), handshakeTimeout)
		case <-tick.C:
		}
	}
	return nil
}
