// Package queue implements the bounded, ordered bridge transport.
//
// A Ring is a single-producer single-consumer queue of variable-length
// records laid out in a shm.Region so that producer and consumer may live in
// different processes. The queue is not safe for concurrent producers (or
// concurrent consumers); the bridge serializes access on each side.
//
// Region layout:
//
//	0   u64 write cursor (producer-owned, monotonic byte count)
//	64  u64 read cursor  (consumer-owned, monotonic byte count)
//	128 u32 magic
//	132 u32 data capacity
//	136 u32 closed flag
//	192 data...
//
// Each record is a u32 length followed by the record bytes, padded to 4.
// A length of WrapMarker means "skip to the start of the data area".
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/pithecene-io/tether/shm"
	"github.com/pithecene-io/tether/wire"
)

// Layout constants.
const (
	// HeaderSize is the number of region bytes reserved for the ring header.
	HeaderSize = 192
	// WrapMarker is the length value of a wrap record.
	WrapMarker uint32 = 0xFFFFFFFF

	magic     uint32 = 0x54485231 // "THR1"
	lenPrefix        = 4
	align            = 4
)

// Sentinel errors. Transport-level conditions the caller must handle.
var (
	// ErrEmpty indicates no record is available.
	ErrEmpty = errors.New("queue empty")
	// ErrCongested indicates the queue stayed full for the whole push window.
	ErrCongested = errors.New("queue congested")
	// ErrClosed indicates either side closed the queue.
	ErrClosed = errors.New("queue closed")
	// ErrTooLarge indicates a record that can never fit in the ring.
	ErrTooLarge = errors.New("record exceeds queue capacity")
	// ErrCorrupt indicates an invalid header or record length.
	ErrCorrupt = errors.New("queue corrupt")
)

// Options configures a Ring.
type Options struct {
	// PushTimeout bounds how long Push waits for space before returning
	// ErrCongested. Zero waits until the context is done.
	PushTimeout time.Duration
}

// Stats is a point-in-time view of one side's queue activity.
type Stats struct {
	Pushes        int64
	Pops          int64
	Congested     int64
	HighWatermark int64
	Capacity      int64
}

// Ring is one direction of the bridge transport.
type Ring struct {
	region   shm.Region
	data     []byte
	capacity uint64
	wpos     *atomic.Uint64
	rpos     *atomic.Uint64
	closed   *atomic.Uint32
	opts     Options

	pushes    atomic.Int64
	pops      atomic.Int64
	congested atomic.Int64
	highWater atomic.Int64
}

// New initializes a ring over region. With create set the header is
// (re)written; otherwise an existing header is validated and attached to.
func New(region shm.Region, create bool, opts Options) (*Ring, error) {
	b := region.Bytes()
	if len(b) < HeaderSize+64 {
		return nil, fmt.Errorf("%w: region of %d bytes is too small", ErrCorrupt, len(b))
	}
	r := &Ring{
		region: region,
		wpos:   (*atomic.Uint64)(unsafe.Pointer(&b[0])),
		rpos:   (*atomic.Uint64)(unsafe.Pointer(&b[64])),
		closed: (*atomic.Uint32)(unsafe.Pointer(&b[136])),
		opts:   opts,
	}
	capacity := uint32((len(b) - HeaderSize) &^ (align - 1))
	magicPtr := (*atomic.Uint32)(unsafe.Pointer(&b[128]))
	capPtr := (*atomic.Uint32)(unsafe.Pointer(&b[132]))

	if create {
		r.wpos.Store(0)
		r.rpos.Store(0)
		r.closed.Store(0)
		capPtr.Store(capacity)
		magicPtr.Store(magic)
	} else {
		if m := magicPtr.Load(); m != magic {
			return nil, fmt.Errorf("%w: bad magic %#x", ErrCorrupt, m)
		}
		if c := capPtr.Load(); c > capacity || c%align != 0 {
			return nil, fmt.Errorf("%w: header capacity %d exceeds region capacity %d", ErrCorrupt, c, capacity)
		}
		capacity = capPtr.Load()
	}

	r.capacity = uint64(capacity)
	r.data = b[HeaderSize : HeaderSize+int(capacity)]
	return r, nil
}

// NewHeap returns a ring over a fresh process-local region with the given
// data capacity in bytes.
func NewHeap(capacity int, opts Options) *Ring {
	r, err := New(shm.NewHeap(HeaderSize+capacity), true, opts)
	if err != nil {
		// Only reachable with a capacity below the minimum.
		panic(err)
	}
	return r
}

func padded(n int) uint64 {
	return uint64((lenPrefix + n + align - 1) &^ (align - 1))
}

// Capacity returns the data capacity in bytes.
func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// Len returns the number of bytes currently queued, including framing.
func (r *Ring) Len() int {
	return int(r.wpos.Load() - r.rpos.Load())
}

// IsEmpty reports whether the consumer has drained every record.
func (r *Ring) IsEmpty() bool {
	return r.wpos.Load() == r.rpos.Load()
}

// Closed reports whether either side has closed the ring.
func (r *Ring) Closed() bool {
	return r.closed.Load() != 0
}

// Close marks the ring closed for both sides. Blocked producers and
// consumers return ErrClosed. Close does not release the region.
func (r *Ring) Close() error {
	r.closed.Store(1)
	return nil
}

// Release closes the ring and releases its region.
func (r *Ring) Release() error {
	_ = r.Close()
	return r.region.Close()
}

// Detach releases this side's mapping of the region without closing the
// ring, so the peer keeps running.
func (r *Ring) Detach() error {
	return r.region.Close()
}

// TryPush appends rec without blocking. It returns ErrCongested if there is
// not enough free space.
func (r *Ring) TryPush(rec []byte) error {
	err := r.tryPush(rec)
	if errors.Is(err, ErrCongested) {
		r.congested.Add(1)
	}
	return err
}

func (r *Ring) tryPush(rec []byte) error {
	need := padded(len(rec))
	if need > r.capacity {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrTooLarge, need, r.capacity)
	}
	if r.Closed() {
		return ErrClosed
	}

	w := r.wpos.Load()
	free := r.capacity - (w - r.rpos.Load())
	off := w % r.capacity
	tail := r.capacity - off

	if tail < need {
		// The record does not fit before the end of the data area. Publish a
		// wrap marker on its own so the consumer can free the tail.
		if free < tail {
			return ErrCongested
		}
		binaryPut(r.data[off:], WrapMarker)
		w += tail
		r.wpos.Store(w)
		free -= tail
		off = 0
	}
	if free < need {
		return ErrCongested
	}

	binaryPut(r.data[off:], uint32(len(rec)))
	copy(r.data[off+lenPrefix:], rec)
	w += need
	r.wpos.Store(w)

	r.pushes.Add(1)
	if used := int64(w - r.rpos.Load()); used > r.highWater.Load() {
		r.highWater.Store(used)
	}
	return nil
}

// Push appends rec, waiting with backoff while the ring is full. It returns
// ErrCongested once PushTimeout elapses; entries are never dropped or
// overwritten.
func (r *Ring) Push(ctx context.Context, rec []byte) error {
	return r.PushIdle(ctx, rec, nil)
}

// PushIdle is Push with idle called before every wait while the ring is
// full. An error from idle aborts the push. The bridge client drains its
// response queue from idle so a peer blocked on responses can progress.
func (r *Ring) PushIdle(ctx context.Context, rec []byte, idle func() error) error {
	var deadline time.Time
	if r.opts.PushTimeout > 0 {
		deadline = time.Now().Add(r.opts.PushTimeout)
	}
	var bo Backoff
	for {
		err := r.tryPush(rec)
		if !errors.Is(err, ErrCongested) {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			r.congested.Add(1)
			return ErrCongested
		}
		if idle != nil {
			if err := idle(); err != nil {
				return err
			}
		}
		if err := bo.Wait(ctx); err != nil {
			return err
		}
	}
}

// front locates the next record, skipping wrap markers. It returns the
// record's data offset and length.
func (r *Ring) front() (off uint64, n uint32, err error) {
	for {
		rp := r.rpos.Load()
		if rp == r.wpos.Load() {
			if r.Closed() {
				return 0, 0, ErrClosed
			}
			return 0, 0, ErrEmpty
		}
		off = rp % r.capacity
		n = binaryGet(r.data[off:])
		if n == WrapMarker {
			r.rpos.Store(rp + (r.capacity - off))
			continue
		}
		if uint64(n)+lenPrefix > r.capacity-off {
			return 0, 0, fmt.Errorf("%w: record length %d at offset %d", ErrCorrupt, n, off)
		}
		return off, n, nil
	}
}

// Front returns a copy of the next record without consuming it.
func (r *Ring) Front() ([]byte, error) {
	off, n, err := r.front()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[off+lenPrefix:])
	return out, nil
}

// FrontHeader parses the next record's header without consuming it.
func (r *Ring) FrontHeader() (wire.Header, error) {
	off, n, err := r.front()
	if err != nil {
		return wire.Header{}, err
	}
	start := off + lenPrefix
	return wire.PeekHeader(r.data[start : start+uint64(n)])
}

// TryPop removes and returns the next record, or ErrEmpty.
func (r *Ring) TryPop() ([]byte, error) {
	off, n, err := r.front()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[off+lenPrefix:])
	r.rpos.Store(r.rpos.Load() + padded(int(n)))
	r.pops.Add(1)
	return out, nil
}

// Discard removes the next record without copying it.
func (r *Ring) Discard() error {
	_, n, err := r.front()
	if err != nil {
		return err
	}
	r.rpos.Store(r.rpos.Load() + padded(int(n)))
	r.pops.Add(1)
	return nil
}

// Pop waits with backoff for the next record.
func (r *Ring) Pop(ctx context.Context) ([]byte, error) {
	var bo Backoff
	for {
		rec, err := r.TryPop()
		if !errors.Is(err, ErrEmpty) {
			return rec, err
		}
		if err := bo.Wait(ctx); err != nil {
			return nil, err
		}
	}
}

// EnsureEmpty blocks until the consumer has drained every queued record.
// The caller must not push while waiting.
func (r *Ring) EnsureEmpty(ctx context.Context) error {
	var bo Backoff
	for !r.IsEmpty() {
		if r.Closed() {
			return ErrClosed
		}
		if err := bo.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns this side's counters.
func (r *Ring) Stats() Stats {
	return Stats{
		Pushes:        r.pushes.Load(),
		Pops:          r.pops.Load(),
		Congested:     r.congested.Load(),
		HighWatermark: r.highWater.Load(),
		Capacity:      int64(r.capacity),
	}
}

func binaryPut(b []byte, v uint32) {
	(*atomic.Uint32)(unsafe.Pointer(&b[0])).Store(v)
}

func binaryGet(b []byte) uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&b[0])).Load()
}
