// Package msgchan implements the message channel: a small, at-most-once,
// fire-and-forget channel between native thread message queues, used for
// window and input events that must not wait behind the command queue.
//
// Delivery goes through a Poster. On Windows that is PostThreadMessageW; on
// unix hosts it is a datagram socket per thread; Hub is the in-process
// variant used by tests and single-process embeddings.
package msgchan

import (
	"errors"
	"fmt"
)

// ThreadID is a native thread identifier, or any identifier the Poster uses
// to address a message queue.
type ThreadID uint32

// MessageID identifies a message kind. Values below FirstRegistered are
// native window messages; registered names map into
// [FirstRegistered, LastRegistered].
type MessageID uint32

// Registered message id range, matching RegisterWindowMessage.
const (
	FirstRegistered MessageID = 0xC000
	LastRegistered  MessageID = 0xFFFF
)

// Message is one posted message.
type Message struct {
	From ThreadID  `msgpack:"from"`
	ID   MessageID `msgpack:"id"`
	A    uint64    `msgpack:"a"`
	B    uint64    `msgpack:"b"`
}

func (m Message) String() string {
	return fmt.Sprintf("msg %#x (a=%#x b=%#x) from %d", uint32(m.ID), m.A, m.B, m.From)
}

// Poster errors.
var (
	// ErrNoThread indicates the target thread has no message queue.
	ErrNoThread = errors.New("no message queue for thread")
	// ErrQueueFull indicates the target queue refused the message.
	ErrQueueFull = errors.New("message queue full")
	// ErrNameCollision indicates two registered names map to one id.
	ErrNameCollision = errors.New("registered message name collision")
)

// Poster delivers messages to native thread message queues.
type Poster interface {
	// ThreadID returns the calling side's own thread identifier.
	ThreadID() ThreadID
	// Post enqueues a message on thread to's queue without waiting.
	Post(to ThreadID, msg MessageID, a, b uint64) error
	// Register returns the process-independent id for a message name.
	Register(name string) (MessageID, error)
}
