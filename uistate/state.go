// Package uistate holds the process-local copy of the overlay's UI-active
// flag. The only writer is the channel handler installed by Bind, which
// reacts to the overlay's toggle message; readers poll Active on every
// input event.
package uistate

import (
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/tether/msgchan"
)

// Listener observes UI-active transitions. It runs on the goroutine that
// delivered the toggle message.
type Listener func(active bool)

// State is the UI-active flag plus transition listeners.
type State struct {
	active atomic.Bool

	mu        sync.Mutex
	listeners []Listener
}

// New returns an inactive State.
func New() *State {
	return &State{}
}

// Active reports whether an overlay currently owns input.
func (s *State) Active() bool {
	return s.active.Load()
}

// Subscribe adds a transition listener.
func (s *State) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Bind installs the toggle handler on ch and returns the message id it
// listens on. Parameter A of the toggle message is non-zero for active.
func (s *State) Bind(ch *msgchan.Channel) (msgchan.MessageID, error) {
	id, err := ch.Register(msgchan.NameUIActive)
	if err != nil {
		return 0, err
	}
	ch.RegisterHandler(id, func(a, _ uint64) bool {
		s.set(a != 0)
		return true
	})
	return id, nil
}

func (s *State) set(active bool) {
	if s.active.Swap(active) == active {
		return
	}
	s.mu.Lock()
	ls := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, fn := range ls {
		fn(active)
	}
}

// Toggle sends the overlay's toggle message on ch. This is the overlay
// side of the contract; it never touches a local State.
func Toggle(ch *msgchan.Channel, active bool) error {
	id, err := ch.Register(msgchan.NameUIActive)
	if err != nil {
		return err
	}
	var a uint64
	if active {
		a = 1
	}
	return ch.Send(id, a, 0)
}
