// Package cache memoizes responses of idempotent, immutable remote queries.
//
// Entries live until the cache is discarded; there is no eviction or TTL
// because the queried data (adapter and device capabilities) cannot change
// while the server process is alive. Failed results are cached too: the
// failure is as deterministic as the success.
//
// The cache is internally synchronized regardless of the bridge lock policy.
// Two goroutines missing on the same key may both populate it; the values
// are identical, so the last writer wins.
package cache

import (
	"bytes"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/pithecene-io/tether/types"
)

const (
	shardCount = 16
	shardMask  = shardCount - 1
)

// Key identifies a cached query.
type Key struct {
	Opcode types.Opcode
	Target uint64
	Hash   uint64
}

// Entry is a cached remote result.
type Entry struct {
	Status  types.Status
	Payload []byte
}

type storedEntry struct {
	target uint64
	args   []byte
	entry  Entry
}

type shard struct {
	mu      sync.RWMutex
	entries map[Key][]storedEntry
}

// Stats reports cache activity.
type Stats struct {
	Hits       int64
	Misses     int64
	Collisions int64
	Entries    int64
}

// Cache is a sharded response cache keyed by opcode, target object and
// argument hash.
type Cache struct {
	shards [shardCount]*shard

	hits       atomic.Int64
	misses     atomic.Int64
	collisions atomic.Int64
	entries    atomic.Int64
}

// New creates an empty cache.
func New() *Cache {
	c := &Cache{}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[Key][]storedEntry)}
	}
	return c
}

// HashQuery hashes the target id followed by the complete encoded argument
// blob. Every discriminating parameter is covered, so distinct queries hash
// independently.
func HashQuery(target uint64, args []byte) uint64 {
	var t [8]byte
	binary.LittleEndian.PutUint64(t[:], target)
	d := xxhash.New()
	_, _ = d.Write(t[:])
	_, _ = d.Write(args)
	return d.Sum64()
}

// KeyFor returns the cache key of a query.
func KeyFor(op types.Opcode, target uint64, args []byte) Key {
	return Key{Opcode: op, Target: target, Hash: HashQuery(target, args)}
}

func (c *Cache) shardFor(k Key) *shard {
	return c.shards[(k.Hash^uint64(k.Opcode))&shardMask]
}

func (se *storedEntry) matches(target uint64, args []byte) bool {
	return se.target == target && bytes.Equal(se.args, args)
}

// Get returns the cached result for (op, target, args). The stored target
// and arguments are compared on every hit, so a hash collision is reported
// as a miss. The returned payload is a copy.
func (c *Cache) Get(op types.Opcode, target uint64, args []byte) (Entry, bool) {
	if !op.Cacheable() {
		return Entry{}, false
	}
	k := KeyFor(op, target, args)
	s := c.shardFor(k)

	s.mu.RLock()
	bucket := s.entries[k]
	for i := range bucket {
		if se := &bucket[i]; se.matches(target, args) {
			out := Entry{Status: se.entry.Status, Payload: bytes.Clone(se.entry.Payload)}
			s.mu.RUnlock()
			c.hits.Add(1)
			return out, true
		}
	}
	s.mu.RUnlock()

	if len(bucket) > 0 {
		c.collisions.Add(1)
	}
	c.misses.Add(1)
	return Entry{}, false
}

// Put stores the result of (op, target, args). Non-cacheable opcodes are
// ignored. Both args and payload are copied.
func (c *Cache) Put(op types.Opcode, target uint64, args []byte, e Entry) {
	if !op.Cacheable() {
		return
	}
	k := KeyFor(op, target, args)
	s := c.shardFor(k)
	stored := storedEntry{
		target: target,
		args:   bytes.Clone(args),
		entry:  Entry{Status: e.Status, Payload: bytes.Clone(e.Payload)},
	}
	if stored.args == nil {
		stored.args = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.entries[k]
	for i := range bucket {
		if bucket[i].matches(target, args) {
			bucket[i] = stored
			return
		}
	}
	s.entries[k] = append(bucket, stored)
	c.entries.Add(1)
}

// Len returns the number of cached queries.
func (c *Cache) Len() int {
	return int(c.entries.Load())
}

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Collisions: c.collisions.Load(),
		Entries:    c.entries.Load(),
	}
}
