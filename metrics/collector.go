// Package metrics provides per-session bridge counters.
//
// The Collector accumulates counters for one bridge session. It is a leaf
// package with no internal dependencies. Queue and cache statistics are
// absorbed from their owners at snapshot time rather than recorded live,
// avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Round trips
	CommandsSent      int64 `msgpack:"commands_sent" json:"commands_sent" yaml:"commands_sent"`
	ResponsesReceived int64 `msgpack:"responses_received" json:"responses_received" yaml:"responses_received"`
	Timeouts          int64 `msgpack:"timeouts" json:"timeouts" yaml:"timeouts"`
	StaleDiscarded    int64 `msgpack:"stale_discarded" json:"stale_discarded" yaml:"stale_discarded"`
	RemoteFailures    int64 `msgpack:"remote_failures" json:"remote_failures" yaml:"remote_failures"`

	// Errors
	TransportErrors int64 `msgpack:"transport_errors" json:"transport_errors" yaml:"transport_errors"`
	ProtocolErrors  int64 `msgpack:"protocol_errors" json:"protocol_errors" yaml:"protocol_errors"`
	// ResponseStalls counts response pushes that found the response queue
	// full for a whole push window and retried.
	ResponseStalls int64 `msgpack:"response_stalls" json:"response_stalls" yaml:"response_stalls"`

	// Cache (absorbed from cache.Stats)
	CacheHits       int64 `msgpack:"cache_hits" json:"cache_hits" yaml:"cache_hits"`
	CacheMisses     int64 `msgpack:"cache_misses" json:"cache_misses" yaml:"cache_misses"`
	CacheCollisions int64 `msgpack:"cache_collisions" json:"cache_collisions" yaml:"cache_collisions"`
	CacheEntries    int64 `msgpack:"cache_entries" json:"cache_entries" yaml:"cache_entries"`

	// Queue (absorbed from queue.Stats of the command ring)
	QueueCongested     int64 `msgpack:"queue_congested" json:"queue_congested" yaml:"queue_congested"`
	QueueHighWatermark int64 `msgpack:"queue_high_watermark" json:"queue_high_watermark" yaml:"queue_high_watermark"`
	QueueCapacity      int64 `msgpack:"queue_capacity" json:"queue_capacity" yaml:"queue_capacity"`

	// Message channel and input gating
	ChannelSent     int64 `msgpack:"channel_sent" json:"channel_sent" yaml:"channel_sent"`
	ChannelDropped  int64 `msgpack:"channel_dropped" json:"channel_dropped" yaml:"channel_dropped"`
	// ChannelReceived counts messages handled by a registered channel handler.
	ChannelReceived int64 `msgpack:"channel_received" json:"channel_received" yaml:"channel_received"`
	InputSuppressed int64 `msgpack:"input_suppressed" json:"input_suppressed" yaml:"input_suppressed"`
	InputReplayed   int64 `msgpack:"input_replayed" json:"input_replayed" yaml:"input_replayed"`
	// CaptureErrors counts UI transitions whose capture neutralize or
	// restore did not fully apply.
	CaptureErrors int64 `msgpack:"capture_errors" json:"capture_errors" yaml:"capture_errors"`

	// Dimensions (informational, set at construction)
	LockPolicy string `msgpack:"lock_policy" json:"lock_policy" yaml:"lock_policy"`
	Transport  string `msgpack:"transport" json:"transport" yaml:"transport"`
	SessionID  string `msgpack:"session_id" json:"session_id" yaml:"session_id"`
	Role       string `msgpack:"role" json:"role" yaml:"role"`
}

// Collector accumulates metrics during one bridge session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	commandsSent      int64
	responsesReceived int64
	timeouts          int64
	staleDiscarded    int64
	remoteFailures    int64

	transportErrors int64
	protocolErrors  int64
	responseStalls  int64

	cacheHits       int64
	cacheMisses     int64
	cacheCollisions int64
	cacheEntries    int64

	queueCongested     int64
	queueHighWatermark int64
	queueCapacity      int64

	channelSent     int64
	channelDropped  int64
	channelReceived int64
	inputSuppressed int64
	inputReplayed   int64
	captureErrors   int64

	lockPolicy string
	transport  string
	sessionID  string
	role       string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(lockPolicy, transport, sessionID, role string) *Collector {
	return &Collector{
		lockPolicy: lockPolicy,
		transport:  transport,
		sessionID:  sessionID,
		role:       role,
	}
}

func (c *Collector) add(p *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*p++
	c.mu.Unlock()
}

// --- Round trips ---

// IncCommandSent records a command pushed onto the command queue.
func (c *Collector) IncCommandSent() {
	if c == nil {
		return
	}
	c.add(&c.commandsSent)
}

// IncResponseReceived records a response delivered to a waiter.
func (c *Collector) IncResponseReceived() {
	if c == nil {
		return
	}
	c.add(&c.responsesReceived)
}

// IncTimeout records a wait that hit its deadline.
func (c *Collector) IncTimeout() {
	if c == nil {
		return
	}
	c.add(&c.timeouts)
}

// IncStaleDiscarded records a late response drained for an abandoned id.
func (c *Collector) IncStaleDiscarded() {
	if c == nil {
		return
	}
	c.add(&c.staleDiscarded)
}

// IncRemoteFailure records a well-formed response with a failure status.
func (c *Collector) IncRemoteFailure() {
	if c == nil {
		return
	}
	c.add(&c.remoteFailures)
}

// --- Errors ---

// IncTransportError records a queue full or closed condition.
func (c *Collector) IncTransportError() {
	if c == nil {
		return
	}
	c.add(&c.transportErrors)
}

// IncProtocolError records a decode failure or unknown correlation id.
func (c *Collector) IncProtocolError() {
	if c == nil {
		return
	}
	c.add(&c.protocolErrors)
}

// IncResponseStall records a response push retried because the response
// queue stayed full.
func (c *Collector) IncResponseStall() {
	if c == nil {
		return
	}
	c.add(&c.responseStalls)
}

// --- Message channel / input ---

// IncChannelSent records a message posted to a channel peer.
func (c *Collector) IncChannelSent() {
	if c == nil {
		return
	}
	c.add(&c.channelSent)
}

// IncChannelDropped records a send refused before the handshake or by the poster.
func (c *Collector) IncChannelDropped() {
	if c == nil {
		return
	}
	c.add(&c.channelDropped)
}

// IncChannelReceived records a message consumed by a channel handler.
func (c *Collector) IncChannelReceived() {
	if c == nil {
		return
	}
	c.add(&c.channelReceived)
}

// IncInputSuppressed records an input message withheld from the game.
func (c *Collector) IncInputSuppressed() {
	if c == nil {
		return
	}
	c.add(&c.inputSuppressed)
}

// IncInputReplayed records a synthesized device message replayed into the window.
func (c *Collector) IncInputReplayed() {
	if c == nil {
		return
	}
	c.add(&c.inputReplayed)
}

// IncCaptureError records a capture neutralize or restore that failed.
func (c *Collector) IncCaptureError() {
	if c == nil {
		return
	}
	c.add(&c.captureErrors)
}

// --- Absorbed stats ---

// AbsorbCacheStats copies result cache counters into the collector.
// Arguments are plain integers to keep this package free of internal imports.
func (c *Collector) AbsorbCacheStats(hits, misses, collisions, entries int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheHits = hits
	c.cacheMisses = misses
	c.cacheCollisions = collisions
	c.cacheEntries = entries
	c.mu.Unlock()
}

// AbsorbQueueStats copies command queue counters into the collector.
func (c *Collector) AbsorbQueueStats(congested, highWatermark, capacity int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.queueCongested = congested
	c.queueHighWatermark = highWatermark
	c.queueCapacity = capacity
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		CommandsSent:      c.commandsSent,
		ResponsesReceived: c.responsesReceived,
		Timeouts:          c.timeouts,
		StaleDiscarded:    c.staleDiscarded,
		RemoteFailures:    c.remoteFailures,

		TransportErrors: c.transportErrors,
		ProtocolErrors:  c.protocolErrors,
		ResponseStalls:  c.responseStalls,

		CacheHits:       c.cacheHits,
		CacheMisses:     c.cacheMisses,
		CacheCollisions: c.cacheCollisions,
		CacheEntries:    c.cacheEntries,

		QueueCongested:     c.queueCongested,
		QueueHighWatermark: c.queueHighWatermark,
		QueueCapacity:      c.queueCapacity,

		ChannelSent:     c.channelSent,
		ChannelDropped:  c.channelDropped,
		ChannelReceived: c.channelReceived,
		InputSuppressed: c.inputSuppressed,
		InputReplayed:   c.inputReplayed,
		CaptureErrors:   c.captureErrors,

		LockPolicy: c.lockPolicy,
		Transport:  c.transport,
		SessionID:  c.sessionID,
		Role:       c.role,
	}
}
