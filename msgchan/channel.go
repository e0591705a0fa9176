package msgchan

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
)

// Channel errors.
var (
	// ErrNotEstablished indicates a Send before the handshake completed.
	ErrNotEstablished = errors.New("message channel not established")
	// ErrNoPeer indicates a Handshake without a known peer thread.
	ErrNoPeer = errors.New("message channel peer unknown")
)

// State is a channel's handshake state.
type State int32

// Channel states.
const (
	Unestablished State = iota
	HandshakeSent
	Established
)

func (s State) String() string {
	switch s {
	case Unestablished:
		return "unestablished"
	case HandshakeSent:
		return "handshake_sent"
	case Established:
		return "established"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handshake parameter B values.
const (
	handshakeRequest uint64 = 0
	handshakeReply   uint64 = 1
)

// Handler handles one message kind. It reports whether the message was
// fully handled, suppressing default processing.
type Handler func(a, b uint64) bool

// Options configures a Channel.
type Options struct {
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Channel is one end of a message channel session.
//
// Send may be called from any goroutine. OnMessage must be called from the
// goroutine that owns the receiving thread queue.
type Channel struct {
	name      string
	poster    Poster
	handshake MessageID

	state atomic.Int32
	peer  atomic.Uint32

	mu       sync.RWMutex
	handlers map[MessageID]Handler

	logger  *log.Logger
	metrics *metrics.Collector
}

func newChannel(name string, p Poster, peer ThreadID, opts Options) (*Channel, error) {
	hs, err := p.Register(NameHandshake + "." + name)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	c := &Channel{
		name:      name,
		poster:    p,
		handshake: hs,
		handlers:  make(map[MessageID]Handler),
		logger:    logger,
		metrics:   opts.Metrics,
	}
	c.peer.Store(uint32(peer))
	return c, nil
}

// NewServer creates the side that owns the window. Its peer is learned
// from the first handshake it receives.
func NewServer(name string, p Poster, opts Options) (*Channel, error) {
	return newChannel(name, p, 0, opts)
}

// NewClient creates the side that knows its peer. peer may be 0, in which
// case it is learned from the peer's handshake.
func NewClient(name string, p Poster, peer ThreadID, opts Options) (*Channel, error) {
	return newChannel(name, p, peer, opts)
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// State returns the handshake state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Peer returns the peer thread, or 0 if unknown.
func (c *Channel) Peer() ThreadID { return ThreadID(c.peer.Load()) }

// Register resolves a message name through the channel's poster.
func (c *Channel) Register(name string) (MessageID, error) {
	return c.poster.Register(name)
}

// RegisterHandler associates msg with fn, replacing any previous handler.
func (c *Channel) RegisterHandler(msg MessageID, fn Handler) {
	c.mu.Lock()
	c.handlers[msg] = fn
	c.mu.Unlock()
}

// Handshake posts this side's thread id to the peer. The channel becomes
// Established when the peer's reply arrives.
func (c *Channel) Handshake() error {
	peer := c.Peer()
	if peer == 0 {
		return fmt.Errorf("channel %s: %w", c.name, ErrNoPeer)
	}
	if err := c.poster.Post(peer, c.handshake, uint64(c.poster.ThreadID()), handshakeRequest); err != nil {
		return fmt.Errorf("channel %s handshake: %w", c.name, err)
	}
	c.state.CompareAndSwap(int32(Unestablished), int32(HandshakeSent))
	return nil
}

// Send posts msg to the peer. Delivery is at most once and unacknowledged.
func (c *Channel) Send(msg MessageID, a, b uint64) error {
	if c.State() != Established {
		c.metrics.IncChannelDropped()
		return fmt.Errorf("channel %s: %w", c.name, ErrNotEstablished)
	}
	if err := c.poster.Post(c.Peer(), msg, a, b); err != nil {
		c.metrics.IncChannelDropped()
		c.logger.Debug("message channel post failed", map[string]any{
			"channel": c.name,
			"message": uint32(msg),
			"error":   err.Error(),
		})
		return err
	}
	c.metrics.IncChannelSent()
	return nil
}

// OnMessage dispatches one received message. Handshakes are consumed by
// the channel; other messages go to their registered handler. It reports
// whether the message was handled.
func (c *Channel) OnMessage(msg MessageID, a, b uint64) bool {
	if msg == c.handshake {
		c.onHandshake(ThreadID(a), b)
		return true
	}
	c.mu.RLock()
	fn, ok := c.handlers[msg]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return fn(a, b)
}

// Dispatch is OnMessage for a received Message, in the shape taken by
// ThreadQueue.Run and DatagramPoster.Run.
func (c *Channel) Dispatch(m Message) {
	c.OnMessage(m.ID, m.A, m.B)
}

func (c *Channel) onHandshake(from ThreadID, kind uint64) {
	if from == 0 {
		c.logger.Warn("handshake without thread id ignored", map[string]any{"channel": c.name})
		return
	}
	prev := c.Peer()
	c.peer.Store(uint32(from))
	if kind == handshakeRequest {
		if err := c.poster.Post(from, c.handshake, uint64(c.poster.ThreadID()), handshakeReply); err != nil {
			c.logger.Error("handshake reply failed", map[string]any{
				"channel": c.name,
				"peer":    uint32(from),
				"error":   err.Error(),
			})
			return
		}
	}
	if State(c.state.Swap(int32(Established))) != Established || prev != from {
		c.logger.Info("message channel established", map[string]any{
			"channel": c.name,
			"peer":    uint32(from),
		})
	}
}
