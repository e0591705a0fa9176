package msgchan

import (
	"context"
	"fmt"
	"sync"
)

// DefaultQueueDepth is the buffered depth of a Hub thread queue.
const DefaultQueueDepth = 256

// Hub simulates native thread message queues inside one process.
// Registered names are shared by every thread of the hub.
type Hub struct {
	mu      sync.Mutex
	threads map[ThreadID]*ThreadQueue
	names   map[string]MessageID
	nextTID ThreadID
	nextMsg MessageID
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		threads: make(map[ThreadID]*ThreadQueue),
		names:   make(map[string]MessageID),
		nextMsg: FirstRegistered,
	}
}

// NewThread creates a thread message queue with the given depth
// (DefaultQueueDepth if depth <= 0).
func (h *Hub) NewThread(depth int) *ThreadQueue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextTID++
	q := &ThreadQueue{hub: h, id: h.nextTID, ch: make(chan Message, depth)}
	h.threads[q.id] = q
	return q
}

func (h *Hub) register(name string) (MessageID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id, ok := h.names[name]; ok {
		return id, nil
	}
	if h.nextMsg > LastRegistered {
		return 0, fmt.Errorf("register %q: registered message range exhausted", name)
	}
	id := h.nextMsg
	h.nextMsg++
	h.names[name] = id
	return id, nil
}

func (h *Hub) post(from, to ThreadID, msg MessageID, a, b uint64) error {
	h.mu.Lock()
	q, ok := h.threads[to]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %d", ErrNoThread, to)
	}
	select {
	case q.ch <- Message{From: from, ID: msg, A: a, B: b}:
		return nil
	default:
		return fmt.Errorf("%w: thread %d", ErrQueueFull, to)
	}
}

func (h *Hub) remove(id ThreadID) {
	h.mu.Lock()
	delete(h.threads, id)
	h.mu.Unlock()
}

// ThreadQueue is one simulated thread message queue. It is the Poster of
// the thread that owns it.
type ThreadQueue struct {
	hub *Hub
	id  ThreadID
	ch  chan Message
}

// ThreadID returns the queue's thread identifier.
func (q *ThreadQueue) ThreadID() ThreadID { return q.id }

// Post enqueues a message on another thread's queue.
func (q *ThreadQueue) Post(to ThreadID, msg MessageID, a, b uint64) error {
	return q.hub.post(q.id, to, msg, a, b)
}

// Register maps name to a hub-wide message id.
func (q *ThreadQueue) Register(name string) (MessageID, error) {
	return q.hub.register(name)
}

// Messages exposes the receive side of the queue.
func (q *ThreadQueue) Messages() <-chan Message { return q.ch }

// Run drives the queue from the calling goroutine, which plays the owning
// thread, until ctx is done. Each message is passed to dispatch.
func (q *ThreadQueue) Run(ctx context.Context, dispatch func(Message)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-q.ch:
			dispatch(m)
		}
	}
}

// Close removes the queue from its hub. Later posts to it fail with
// ErrNoThread.
func (q *ThreadQueue) Close() error {
	q.hub.remove(q.id)
	return nil
}
