// Package server drains the command queue, dispatches each command to a
// Handler and answers every reply-expecting command exactly once.
//
// The translation layer that actually executes calls lives behind Handler.
// Reference is an in-repo Handler used by the CLI and tests.
package server

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/queue"
	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/wire"
)

// ErrTerminated is returned by Serve after an OpTerminate command.
var ErrTerminated = errors.New("server terminated by client")

// Handler executes one decoded command. For reply-expecting opcodes the
// returned status and payload become the response; otherwise they are
// ignored. cmd.Args aliases the command record and must not be retained.
type Handler interface {
	Handle(ctx context.Context, cmd *wire.Command) (types.Status, []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd *wire.Command) (types.Status, []byte)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd *wire.Command) (types.Status, []byte) {
	return f(ctx, cmd)
}

// Stats reports dispatcher activity.
type Stats struct {
	Commands  int64
	Responses int64
	Malformed int64
}

// Server is the consuming end of a queue pair.
type Server struct {
	pair    *queue.Pair
	handler Handler
	logger  *log.Logger
	metrics *metrics.Collector

	commands  atomic.Int64
	responses atomic.Int64
	malformed atomic.Int64
}

// New creates a server dispatching commands from pair to h.
func New(pair *queue.Pair, h Handler, logger *log.Logger, m *metrics.Collector) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Server{pair: pair, handler: h, logger: logger, metrics: m}
}

// Serve processes commands until ctx is done, the queue closes, or the
// client sends OpTerminate.
func (s *Server) Serve(ctx context.Context) error {
	for {
		rec, err := s.pair.Commands.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.dispatch(ctx, rec); err != nil {
			return err
		}
	}
}

// ServeOne processes at most one queued command without blocking. It
// reports whether a command was processed.
func (s *Server) ServeOne(ctx context.Context) (bool, error) {
	rec, err := s.pair.Commands.TryPop()
	if errors.Is(err, queue.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, s.dispatch(ctx, rec)
}

func (s *Server) dispatch(ctx context.Context, rec []byte) error {
	s.commands.Add(1)
	cmd, err := wire.DecodeCommand(rec)
	if err != nil {
		return s.reject(ctx, rec, err)
	}

	if cmd.Opcode == types.OpTerminate {
		s.logger.Info("terminate received", nil)
		return ErrTerminated
	}

	status, payload := s.handler.Handle(ctx, cmd)
	if !cmd.ExpectsReply() {
		return nil
	}
	return s.respond(ctx, cmd.Opcode, cmd.CorrelationID, status, payload)
}

// reject answers a malformed command with StatusInvalidCall when the
// header identifies a known, reply-expecting opcode, so the waiting client
// is released instead of timing out.
func (s *Server) reject(ctx context.Context, rec []byte, cause error) error {
	s.malformed.Add(1)
	s.metrics.IncProtocolError()
	h, err := wire.PeekHeader(rec)
	fields := map[string]any{"error": cause.Error()}
	if err == nil {
		fields["opcode"] = h.Opcode.String()
		fields["correlation_id"] = h.CorrelationID
	}
	s.logger.Error("malformed command", fields)
	if err != nil || !h.Opcode.ExpectsReply() || h.CorrelationID == 0 {
		return nil
	}
	return s.respond(ctx, h.Opcode, h.CorrelationID, types.StatusInvalidCall, nil)
}

func (s *Server) respond(ctx context.Context, op types.Opcode, id uint32, status types.Status, payload []byte) error {
	rec := wire.EncodeResponse(op, id, status, payload)
	stalled := false
	for {
		err := s.pair.Responses.Push(ctx, rec)
		if err == nil {
			s.responses.Add(1)
			return nil
		}
		if errors.Is(err, queue.ErrCongested) {
			// The client drains responses before every push; keep the
			// response rather than dropping it.
			s.metrics.IncResponseStall()
			if !stalled {
				stalled = true
				s.logger.Warn("response queue full, retrying", map[string]any{
					"opcode":         op.String(),
					"correlation_id": id,
				})
			}
			continue
		}
		s.metrics.IncTransportError()
		s.logger.Error("response push failed", map[string]any{
			"opcode":         op.String(),
			"correlation_id": id,
			"error":          err.Error(),
		})
		return err
	}
}

// Stats returns dispatcher counters.
func (s *Server) Stats() Stats {
	return Stats{
		Commands:  s.commands.Load(),
		Responses: s.responses.Load(),
		Malformed: s.malformed.Load(),
	}
}
