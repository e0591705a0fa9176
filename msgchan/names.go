package msgchan

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Well-known message names. Each process registers them through its Poster
// so both ends agree on the ids.
const (
	NameHandshake    = "tether.handshake"
	NameUIActive     = "tether.ui_active"
	NameFocusChanged = "tether.focus_changed"
)

// SessionThreadID returns the thread id the server end of session binds
// where the Poster lets the caller choose ids. Both ends derive it from the
// session name alone.
func SessionThreadID(session string) ThreadID {
	id := ThreadID(xxhash.Sum64String("tether.session." + session))
	if id == 0 {
		id = 1
	}
	return id
}

// nameTable derives registered ids from a hash of the name, so processes
// agree on ids without talking to each other. Collisions within one table
// are reported rather than silently aliased.
type nameTable struct {
	mu    sync.Mutex
	byID  map[MessageID]string
	names map[string]MessageID
}

func newNameTable() *nameTable {
	return &nameTable{byID: make(map[MessageID]string), names: make(map[string]MessageID)}
}

func hashName(name string) MessageID {
	span := uint64(LastRegistered-FirstRegistered) + 1
	return FirstRegistered + MessageID(xxhash.Sum64String(name)%span)
}

func (t *nameTable) register(name string) (MessageID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.names[name]; ok {
		return id, nil
	}
	id := hashName(name)
	if other, ok := t.byID[id]; ok {
		return 0, fmt.Errorf("%w: %q and %q", ErrNameCollision, name, other)
	}
	t.byID[id] = name
	t.names[name] = id
	return id, nil
}
