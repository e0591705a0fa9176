// Package lockpolicy selects how bridge submissions are serialized.
//
// The command queue and the wait engine are shared mutable state that is
// not internally thread-safe. A Locker chosen once at bridge creation either
// serializes every submission and synchronous wait behind one process-wide
// mutex, or does nothing when the embedding guarantees single-threaded use.
//
// The lock is coarse on purpose: one lock for the whole bridge. Scoping it to
// the queue and wait engine pair is the only refinement the protocol allows;
// it must never extend into the translation layer.
//
// Hook callbacks (input hooks, window procedures, channel handlers) can run
// on a thread that already holds the lock. They must not call back into a
// bridge Client, or that thread deadlocks on itself.
package lockpolicy

import (
	"fmt"
	"strings"
	"sync"
)

// Policy names a serialization strategy.
type Policy string

// Supported policies.
const (
	// PolicyAuto derives the policy from whether the game requested
	// multithreaded access.
	PolicyAuto Policy = "auto"
	// PolicyUnsynchronized performs no locking.
	PolicyUnsynchronized Policy = "none"
	// PolicyGlobal serializes all submissions behind one mutex.
	PolicyGlobal Policy = "global"
)

// ParsePolicy parses a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAuto:
		return PolicyAuto, nil
	case PolicyUnsynchronized, "unsynchronized":
		return PolicyUnsynchronized, nil
	case PolicyGlobal, "global_lock":
		return PolicyGlobal, nil
	default:
		return "", fmt.Errorf("invalid thread safety policy %q (must be auto, none, or global)", s)
	}
}

// Locker serializes bridge submissions.
// Implementations are not reentrant; bridge entry points take the lock
// exactly once and internal paths never re-acquire it.
type Locker interface {
	sync.Locker
	// Policy returns the resolved policy.
	Policy() Policy
}

// Unsynchronized is a no-op Locker.
type Unsynchronized struct{}

// Lock does nothing.
func (Unsynchronized) Lock() {}

// Unlock does nothing.
func (Unsynchronized) Unlock() {}

// Policy returns PolicyUnsynchronized.
func (Unsynchronized) Policy() Policy { return PolicyUnsynchronized }

// GlobalLock is a single process-wide mutex.
type GlobalLock struct {
	mu sync.Mutex
}

// Lock acquires the bridge lock.
func (g *GlobalLock) Lock() { g.mu.Lock() }

// Unlock releases the bridge lock.
func (g *GlobalLock) Unlock() { g.mu.Unlock() }

// Policy returns PolicyGlobal.
func (g *GlobalLock) Policy() Policy { return PolicyGlobal }

// Select resolves policy into a Locker. PolicyAuto yields a GlobalLock when
// multithreaded is set.
func Select(policy Policy, multithreaded bool) Locker {
	switch policy {
	case PolicyGlobal:
		return &GlobalLock{}
	case PolicyUnsynchronized:
		return Unsynchronized{}
	default:
		if multithreaded {
			return &GlobalLock{}
		}
		return Unsynchronized{}
	}
}
