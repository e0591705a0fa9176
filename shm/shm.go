// Package shm provides the memory regions that back bridge queues.
//
// A Region is either process-local heap memory (tests, single-process
// embedding) or a file mapped MAP_SHARED into both bridge processes.
package shm

import (
	"errors"
	"unsafe"
)

// ErrUnsupported is returned by Open on platforms without shared mappings.
var ErrUnsupported = errors.New("shared memory regions are not supported on this platform")

// Region is a fixed-size byte region. Bytes is 8-byte aligned.
type Region interface {
	Bytes() []byte
	Close() error
}

type heapRegion struct {
	words []uint64
	b     []byte
}

// NewHeap returns a zeroed process-local region of size bytes.
func NewHeap(size int) Region {
	words := make([]uint64, (size+7)/8)
	var b []byte
	if len(words) > 0 {
		b = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	}
	return &heapRegion{words: words, b: b}
}

func (h *heapRegion) Bytes() []byte { return h.b }

func (h *heapRegion) Close() error { return nil }
