package bridge

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/tether/cache"
	"github.com/pithecene-io/tether/lockpolicy"
	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/queue"
	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/wire"
)

// DefaultTimeout is the acknowledgement timeout used when Options.Timeout
// is unset.
const DefaultTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	// Timeout bounds each synchronous wait. Negative disables the bound.
	Timeout time.Duration
	// ForceInfiniteRetries disables the wait bound permanently.
	ForceInfiniteRetries bool
	// LockPolicy selects how submissions are serialized.
	LockPolicy lockpolicy.Policy
	// Multithreaded reports whether the game requested multithreaded
	// access; it resolves lockpolicy.PolicyAuto.
	Multithreaded bool

	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Result is the observed outcome of a remote call.
type Result struct {
	Op            types.Opcode
	CorrelationID uint32
	Status        types.Status
	Payload       []byte
	// Cached is set when the result came from the result cache.
	Cached bool
}

// Err returns a KindRemote error when Status reports failure.
func (r Result) Err() error {
	if !r.Status.Failed() {
		return nil
	}
	return &Error{Kind: KindRemote, Op: r.Op, CorrelationID: r.CorrelationID, Status: r.Status}
}

// Client is the bridge client owned by one embedding. It owns its result
// cache; separate clients never share state.
type Client struct {
	pair    *queue.Pair
	engine  *Engine
	cache   *cache.Cache
	lock    lockpolicy.Locker
	timeout time.Duration
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewClient creates a client over pair.
func NewClient(pair *queue.Pair, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	timeout := opts.Timeout
	switch {
	case timeout == 0:
		timeout = DefaultTimeout
	case timeout < 0:
		timeout = 0
	}
	return &Client{
		pair:    pair,
		engine:  NewEngine(pair.Commands, pair.Responses, opts.ForceInfiniteRetries, logger, opts.Metrics),
		cache:   cache.New(),
		lock:    lockpolicy.Select(opts.LockPolicy, opts.Multithreaded),
		timeout: timeout,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Engine returns the client's wait engine.
func (c *Client) Engine() *Engine { return c.engine }

// Cache returns the client's result cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

// LockPolicy returns the resolved lock policy.
func (c *Client) LockPolicy() lockpolicy.Policy { return c.lock.Policy() }

// SetPatience toggles patience mode on the wait engine.
func (c *Client) SetPatience(on bool) { c.engine.SetPatience(on) }

// Call sends the command built by enc and waits for its response.
//
// On a transport or protocol error the result carries fallback. On timeout
// it carries StatusDeviceLost. A remote failure is returned with a nil
// error and the remote status verbatim; use Result.Err to surface it.
func (c *Client) Call(ctx context.Context, enc *wire.Encoder, fallback types.Status) (Result, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.call(ctx, enc, fallback)
}

func (c *Client) call(ctx context.Context, enc *wire.Encoder, fallback types.Status) (Result, error) {
	op := enc.Opcode()
	if !op.ExpectsReply() {
		return Result{Op: op, Status: fallback}, &Error{Kind: KindProtocol, Op: op, Err: fmt.Errorf("%s has no reply", op)}
	}
	id, err := c.engine.Send(ctx, enc.Finalize())
	if err != nil {
		return Result{Op: op, Status: fallback}, err
	}
	return c.wait(ctx, op, id, fallback, c.engine.WaitFor)
}

type waitFunc func(context.Context, uint32, time.Duration) (*wire.Response, error)

func (c *Client) wait(ctx context.Context, op types.Opcode, id uint32, fallback types.Status, wait waitFunc) (Result, error) {
	rsp, err := wait(ctx, id, c.timeout)
	if err != nil {
		return Result{Op: op, CorrelationID: id, Status: Status(err, fallback)}, err
	}
	if rsp.Opcode != op {
		c.metrics.IncProtocolError()
		c.logger.Error("response opcode mismatch", map[string]any{
			"opcode":          op.String(),
			"response_opcode": rsp.Opcode.String(),
			"correlation_id":  id,
		})
		return Result{Op: op, CorrelationID: id, Status: fallback},
			&Error{Kind: KindProtocol, Op: op, CorrelationID: id, Err: fmt.Errorf("response opcode %s", rsp.Opcode)}
	}
	if rsp.Status.Failed() {
		c.metrics.IncRemoteFailure()
	}
	return Result{
		Op:            op,
		CorrelationID: id,
		Status:        rsp.Status,
		Payload:       bytes.Clone(rsp.Payload),
	}, nil
}

// CallCached is Call for idempotent queries. A hit is served from the
// cache without queue traffic; a completed round trip populates the cache,
// including failed statuses. Timeouts and transport errors are not cached.
// Non-cacheable opcodes behave exactly like Call.
func (c *Client) CallCached(ctx context.Context, enc *wire.Encoder, fallback types.Status) (Result, error) {
	op := enc.Opcode()
	if !op.Cacheable() {
		return c.Call(ctx, enc, fallback)
	}
	target := enc.Target()
	args := bytes.Clone(enc.Args())
	if e, ok := c.cache.Get(op, target, args); ok {
		return Result{Op: op, Status: e.Status, Payload: e.Payload, Cached: true}, nil
	}

	c.lock.Lock()
	res, err := c.call(ctx, enc, fallback)
	c.lock.Unlock()
	if err != nil {
		return res, err
	}
	c.cache.Put(op, target, args, cache.Entry{Status: res.Status, Payload: res.Payload})
	return res, nil
}

// Post sends a command without waiting. Reply-expecting opcodes are sent
// deferred and their responses discarded on arrival.
func (c *Client) Post(ctx context.Context, enc *wire.Encoder) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	op := enc.Opcode()
	if !op.ExpectsReply() {
		return c.engine.Post(ctx, enc.Finalize())
	}
	_, err := c.engine.SendDetached(ctx, enc.Finalize())
	return err
}

// PostDeferred sends a reply-expecting command and returns its id without
// waiting. The reply is retrieved with CollectDeferred.
func (c *Client) PostDeferred(ctx context.Context, enc *wire.Encoder) (uint32, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	op := enc.Opcode()
	if !op.ExpectsReply() {
		return 0, &Error{Kind: KindProtocol, Op: op, Err: fmt.Errorf("%s has no reply", op)}
	}
	return c.engine.SendDeferred(ctx, enc.Finalize())
}

// CollectDeferred waits for the reply of a PostDeferred command.
func (c *Client) CollectDeferred(ctx context.Context, id uint32, fallback types.Status) (Result, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	op := c.engine.ops[id]
	return c.wait(ctx, op, id, fallback, c.engine.Collect)
}

// EnsureQueueEmpty blocks until the server has consumed every queued
// command. Responses that arrive meanwhile are parked or discarded.
func (c *Client) EnsureQueueEmpty(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.ensureEmpty(ctx)
}

func (c *Client) ensureEmpty(ctx context.Context) error {
	var bo queue.Backoff
	for !c.pair.Commands.IsEmpty() {
		if err := c.engine.Drain(); err != nil {
			return err
		}
		if c.pair.Commands.Closed() {
			return c.engine.transportFailure(types.OpNone, 0, queue.ErrClosed)
		}
		if err := bo.Wait(ctx); err != nil {
			return err
		}
	}
	return c.engine.Drain()
}

// DestroyTarget drains the command queue and then sends the destroy
// command built by enc, so no queued command still references target.
func (c *Client) DestroyTarget(ctx context.Context, enc *wire.Encoder) error {
	op := enc.Opcode()
	if !op.Destroys() {
		return &Error{Kind: KindProtocol, Op: op, Err: ErrNotDestroy}
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.ensureEmpty(ctx); err != nil {
		return err
	}
	return c.engine.Post(ctx, enc.Finalize())
}

// Ping performs a round trip and returns its latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	res, err := c.Call(ctx, wire.NewEncoder(types.OpPing, 0), types.StatusFail)
	if err != nil {
		return 0, err
	}
	return time.Since(start), res.Err()
}

// Stats returns the session metrics with cache and queue counters absorbed.
func (c *Client) Stats() metrics.Snapshot {
	cs := c.cache.Stats()
	c.metrics.AbsorbCacheStats(cs.Hits, cs.Misses, cs.Collisions, cs.Entries)
	qs := c.pair.Commands.Stats()
	c.metrics.AbsorbQueueStats(qs.Congested, qs.HighWatermark, qs.Capacity)
	return c.metrics.Snapshot()
}

// Close closes both queues. Blocked producers and consumers on either side
// return queue.ErrClosed.
func (c *Client) Close() error {
	return c.pair.Close()
}
