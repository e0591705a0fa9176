// Package bridge implements the client end of the command bridge: the
// correlation and wait engine over a queue pair, and the Client that layers
// the result cache, lock policy and error mapping on top.
package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/queue"
	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/wire"
)

type waitState uint8

const (
	// stateSent is a command whose sender will wait synchronously.
	stateSent waitState = iota + 1
	// stateDeferred is a command whose reply is collected later.
	stateDeferred
	// stateAbandoned is a command whose wait timed out; its late response
	// is discarded on arrival.
	stateAbandoned
)

// Engine assigns correlation ids and matches responses to waits.
//
// Engine is not safe for concurrent use; the Client serializes access
// through its lock policy. SetPatience may be called from any goroutine.
type Engine struct {
	cmds *queue.Ring
	rsps *queue.Ring

	logger  *log.Logger
	metrics *metrics.Collector

	nextID uint32
	states map[uint32]waitState
	parked map[uint32]*wire.Response
	ops    map[uint32]types.Opcode

	patience      atomic.Bool
	forceInfinite bool
}

// NewEngine creates an engine pushing to cmds and reading from rsps.
// With forceInfinite set, waits never time out.
func NewEngine(cmds, rsps *queue.Ring, forceInfinite bool, logger *log.Logger, m *metrics.Collector) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		cmds:          cmds,
		rsps:          rsps,
		logger:        logger,
		metrics:       m,
		states:        make(map[uint32]waitState),
		parked:        make(map[uint32]*wire.Response),
		ops:           make(map[uint32]types.Opcode),
		forceInfinite: forceInfinite,
	}
}

// SetPatience enables or disables patience mode. While patient, waits
// ignore their timeout. The window layer enables it when focus is lost.
func (e *Engine) SetPatience(on bool) {
	e.patience.Store(on)
}

// Patient reports whether waits currently ignore their timeout.
func (e *Engine) Patient() bool {
	return e.forceInfinite || e.patience.Load()
}

// Pending returns the number of ids the engine is tracking, abandoned ids
// included.
func (e *Engine) Pending() int {
	return len(e.states)
}

// allocID returns the next non-zero id not currently tracked.
func (e *Engine) allocID() uint32 {
	for {
		e.nextID++
		if e.nextID == 0 {
			continue
		}
		if _, busy := e.states[e.nextID]; !busy {
			return e.nextID
		}
	}
}

// Send pushes an encoded command that expects a reply and returns its id.
func (e *Engine) Send(ctx context.Context, rec []byte) (uint32, error) {
	return e.send(ctx, rec, stateSent)
}

// SendDeferred pushes an encoded command whose reply is retrieved later
// with Collect.
func (e *Engine) SendDeferred(ctx context.Context, rec []byte) (uint32, error) {
	return e.send(ctx, rec, stateDeferred)
}

// SendDetached pushes a reply-expecting command nobody will wait for. Its
// id is tracked as abandoned so the reply is discarded on arrival.
func (e *Engine) SendDetached(ctx context.Context, rec []byte) (uint32, error) {
	return e.send(ctx, rec, stateAbandoned)
}

func (e *Engine) send(ctx context.Context, rec []byte, st waitState) (uint32, error) {
	h, err := wire.PeekHeader(rec)
	if err != nil {
		return 0, classify(types.OpNone, 0, err)
	}
	id := e.allocID()
	wire.SetCorrelationID(rec, id)
	if err := e.push(ctx, rec); err != nil {
		return 0, e.pushFailure(h.Opcode, id, err)
	}
	e.states[id] = st
	e.ops[id] = h.Opcode
	e.metrics.IncCommandSent()
	return id, nil
}

// Post pushes an encoded command that has no reply. Its correlation id is 0.
func (e *Engine) Post(ctx context.Context, rec []byte) error {
	h, err := wire.PeekHeader(rec)
	if err != nil {
		return classify(types.OpNone, 0, err)
	}
	wire.SetCorrelationID(rec, 0)
	if err := e.push(ctx, rec); err != nil {
		return e.pushFailure(h.Opcode, 0, err)
	}
	e.metrics.IncCommandSent()
	return nil
}

// push drains the response queue, then appends rec to the command queue,
// draining again between retries while the command queue is full. The
// server never stalls on a response queue filled by replies nobody waits
// for.
func (e *Engine) push(ctx context.Context, rec []byte) error {
	if err := e.drainPending(); err != nil {
		return err
	}
	return e.cmds.PushIdle(ctx, rec, e.drainPending)
}

// drainPending is Drain when responses are queued. A closed, empty
// response queue is left for the command push to report.
func (e *Engine) drainPending() error {
	if e.rsps.IsEmpty() {
		return nil
	}
	return e.Drain()
}

// pushFailure classifies a push error. Drain failures are already
// classified and counted.
func (e *Engine) pushFailure(op types.Opcode, id uint32, err error) error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return e.transportFailure(op, id, err)
}

func (e *Engine) transportFailure(op types.Opcode, id uint32, err error) error {
	be := classify(op, id, err)
	if be.Kind == KindTransport {
		e.metrics.IncTransportError()
	} else {
		e.metrics.IncProtocolError()
	}
	e.logger.Error("bridge push failed", map[string]any{
		"opcode":         op.String(),
		"correlation_id": id,
		"kind":           be.Kind.String(),
		"error":          err.Error(),
	})
	return be
}

// WaitFor blocks until the response for id arrives or timeout elapses.
// A timeout of 0, or patience mode, waits without a deadline. On timeout
// the id is abandoned: the command is not cancelled, and its late response
// is discarded when it reaches the front of the queue.
func (e *Engine) WaitFor(ctx context.Context, id uint32, timeout time.Duration) (*wire.Response, error) {
	st, ok := e.states[id]
	if !ok || st == stateAbandoned {
		return nil, &Error{Kind: KindProtocol, CorrelationID: id, Err: ErrUnknownCorrelation}
	}
	op := e.ops[id]

	var (
		deadline time.Time
		bo       queue.Backoff
	)
	for {
		if rsp, ok := e.parked[id]; ok {
			e.forget(id)
			e.metrics.IncResponseReceived()
			return rsp, nil
		}

		rsp, err := e.pump(id)
		if err != nil {
			return nil, err
		}
		if rsp != nil {
			e.forget(id)
			e.metrics.IncResponseReceived()
			return rsp, nil
		}

		// Patience is re-evaluated every pass; leaving patience mode starts
		// a fresh bounded window.
		switch {
		case timeout <= 0 || e.Patient():
			deadline = time.Time{}
		case deadline.IsZero():
			deadline = time.Now().Add(timeout)
		case time.Now().After(deadline):
			return nil, e.abandon(op, id, timeout, ErrTimeout)
		}

		if err := bo.Wait(ctx); err != nil {
			return nil, e.abandon(op, id, timeout, err)
		}
	}
}

// Collect waits for the reply of a command sent with SendDeferred.
func (e *Engine) Collect(ctx context.Context, id uint32, timeout time.Duration) (*wire.Response, error) {
	if st := e.states[id]; st != stateDeferred {
		return nil, &Error{Kind: KindProtocol, CorrelationID: id, Err: ErrUnknownCorrelation}
	}
	return e.WaitFor(ctx, id, timeout)
}

// Drain consumes every response currently queued, parking those for
// tracked ids and discarding stale or unknown ones. It does not block.
func (e *Engine) Drain() error {
	for {
		rsp, err := e.pump(0)
		if err != nil {
			return err
		}
		if rsp == nil && e.rsps.IsEmpty() {
			return nil
		}
	}
}

// pump inspects the front of the response queue once. It returns the
// response if it belongs to want, nil if the queue is empty or the front
// record was parked or discarded.
func (e *Engine) pump(want uint32) (*wire.Response, error) {
	h, err := e.rsps.FrontHeader()
	switch {
	case errors.Is(err, queue.ErrEmpty):
		return nil, nil
	case err != nil:
		return nil, e.transportFailure(e.ops[want], want, err)
	}

	st, tracked := e.states[h.CorrelationID]
	switch {
	case !tracked:
		_ = e.rsps.Discard()
		e.metrics.IncProtocolError()
		e.logger.Error("response for unknown correlation id discarded", map[string]any{
			"opcode":         h.Opcode.String(),
			"correlation_id": h.CorrelationID,
		})
		return nil, nil
	case st == stateAbandoned:
		_ = e.rsps.Discard()
		e.forget(h.CorrelationID)
		e.metrics.IncStaleDiscarded()
		e.logger.Warn("stale response discarded", map[string]any{
			"opcode":         h.Opcode.String(),
			"correlation_id": h.CorrelationID,
		})
		return nil, nil
	}

	rec, err := e.rsps.TryPop()
	if err != nil {
		return nil, e.transportFailure(h.Opcode, h.CorrelationID, err)
	}
	rsp, err := wire.DecodeResponse(rec)
	if err != nil {
		e.forget(h.CorrelationID)
		e.metrics.IncProtocolError()
		e.logger.Error("malformed response", map[string]any{
			"opcode":         h.Opcode.String(),
			"correlation_id": h.CorrelationID,
			"error":          err.Error(),
		})
		if h.CorrelationID == want {
			return nil, classify(h.Opcode, h.CorrelationID, err)
		}
		return nil, nil
	}
	if want != 0 && rsp.CorrelationID == want {
		return rsp, nil
	}
	e.parked[rsp.CorrelationID] = rsp
	return nil, nil
}

func (e *Engine) abandon(op types.Opcode, id uint32, timeout time.Duration, cause error) error {
	e.states[id] = stateAbandoned
	delete(e.parked, id)
	e.metrics.IncTimeout()
	e.logger.Error("bridge wait timed out", map[string]any{
		"opcode":         op.String(),
		"correlation_id": id,
		"timeout_ms":     timeout.Milliseconds(),
		"cause":          cause.Error(),
	})
	return &Error{Kind: KindTimeout, Op: op, CorrelationID: id, Err: cause}
}

func (e *Engine) forget(id uint32) {
	delete(e.states, id)
	delete(e.parked, id)
	delete(e.ops, id)
}
