package input

import "sync"

// Point is a screen coordinate.
type Point struct {
	X, Y int32
}

// QueryFuncs are the native input state queries.
type QueryFuncs struct {
	CursorPos     func() (Point, bool)
	KeyState      func(vk int32) int16
	AsyncKeyState func(vk int32) int16
	// RawInput copies pending raw input into buf and returns the byte count.
	RawInput func(buf []byte) int
}

const keyCount = 256

// FrozenQueries answers input state queries from a snapshot while an
// overlay owns input, so the game keeps seeing the state it had at
// activation.
type FrozenQueries struct {
	live QueryFuncs

	mu     sync.RWMutex
	frozen bool
	cursor Point
	cursOK bool
	keys   [keyCount]int16
	async  [keyCount]int16
}

// NewFrozenQueries wraps the live queries. Nil functions report zero state.
func NewFrozenQueries(live QueryFuncs) *FrozenQueries {
	if live.CursorPos == nil {
		live.CursorPos = func() (Point, bool) { return Point{}, false }
	}
	if live.KeyState == nil {
		live.KeyState = func(int32) int16 { return 0 }
	}
	if live.AsyncKeyState == nil {
		live.AsyncKeyState = func(int32) int16 { return 0 }
	}
	if live.RawInput == nil {
		live.RawInput = func([]byte) int { return 0 }
	}
	return &FrozenQueries{live: live}
}

// Freeze captures the current state and starts serving it.
func (q *FrozenQueries) Freeze() {
	cursor, ok := q.live.CursorPos()
	var keys, async [keyCount]int16
	for vk := range int32(keyCount) {
		keys[vk] = q.live.KeyState(vk)
		// The low bit means "pressed since the last call"; a frozen
		// snapshot never reports new presses.
		async[vk] = q.live.AsyncKeyState(vk) &^ 1
	}

	q.mu.Lock()
	q.frozen = true
	q.cursor, q.cursOK = cursor, ok
	q.keys, q.async = keys, async
	q.mu.Unlock()
}

// Thaw resumes live answers.
func (q *FrozenQueries) Thaw() {
	q.mu.Lock()
	q.frozen = false
	q.mu.Unlock()
}

// Frozen reports whether snapshot answers are being served.
func (q *FrozenQueries) Frozen() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.frozen
}

// CursorPos replaces the cursor position query.
func (q *FrozenQueries) CursorPos() (Point, bool) {
	q.mu.RLock()
	if q.frozen {
		p, ok := q.cursor, q.cursOK
		q.mu.RUnlock()
		return p, ok
	}
	q.mu.RUnlock()
	return q.live.CursorPos()
}

// KeyState replaces the synchronous key state query.
func (q *FrozenQueries) KeyState(vk int32) int16 {
	q.mu.RLock()
	if q.frozen {
		v := q.keys[vk&(keyCount-1)]
		q.mu.RUnlock()
		return v
	}
	q.mu.RUnlock()
	return q.live.KeyState(vk)
}

// AsyncKeyState replaces the asynchronous key state query.
func (q *FrozenQueries) AsyncKeyState(vk int32) int16 {
	q.mu.RLock()
	if q.frozen {
		v := q.async[vk&(keyCount-1)]
		q.mu.RUnlock()
		return v
	}
	q.mu.RUnlock()
	return q.live.AsyncKeyState(vk)
}

// RawInput replaces the raw input read. Nothing is delivered while frozen.
func (q *FrozenQueries) RawInput(buf []byte) int {
	if q.Frozen() {
		return 0
	}
	return q.live.RawInput(buf)
}
