package hook

import (
	"fmt"
	"sync"
)

// Swapper is a target whose current implementation can be exchanged.
type Swapper interface {
	Swap(replacement any) (original any, err error)
}

// Slot is an interceptable function of type F. Callers invoke the current
// implementation through Get.
type Slot[F any] struct {
	name string
	mu   sync.RWMutex
	fn   F
}

// NewSlot returns a slot holding fn.
func NewSlot[F any](name string, fn F) *Slot[F] {
	return &Slot[F]{name: name, fn: fn}
}

// Name returns the slot name.
func (s *Slot[F]) Name() string { return s.name }

// Get returns the current implementation.
func (s *Slot[F]) Get() F {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fn
}

// Swap installs replacement, which must be an F, and returns the previous
// implementation.
func (s *Slot[F]) Swap(replacement any) (any, error) {
	f, ok := replacement.(F)
	if !ok {
		return nil, fmt.Errorf("%w: slot %s holds %T, got %T", ErrUnsupportedTarget, s.name, s.fn, replacement)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.fn
	s.fn = f
	return old, nil
}

// SlotPatcher attaches entries whose Target is a Swapper.
type SlotPatcher struct{}

// Attach swaps the replacement into the target slot.
func (SlotPatcher) Attach(e *Entry) error {
	sw, ok := e.Target.(Swapper)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTarget, e.Target)
	}
	orig, err := sw.Swap(e.Replacement)
	if err != nil {
		return err
	}
	e.Original = orig
	return nil
}

// Detach swaps the original back.
func (SlotPatcher) Detach(e *Entry) error {
	sw, ok := e.Target.(Swapper)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTarget, e.Target)
	}
	_, err := sw.Swap(e.Original)
	return err
}
