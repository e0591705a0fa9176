package bridge

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/tether/queue"
	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/wire"
)

// Sentinel errors for errors.Is classification.
var (
	// ErrTimeout matches every timeout error.
	ErrTimeout = errors.New("bridge wait timed out")
	// ErrUnknownCorrelation indicates a response or collect for an id the
	// engine never issued or no longer tracks.
	ErrUnknownCorrelation = errors.New("unknown correlation id")
	// ErrNotDestroy indicates DestroyTarget was given a non-destroy opcode.
	ErrNotDestroy = errors.New("opcode does not destroy its target")
)

// ErrorKind classifies bridge errors.
type ErrorKind int

const (
	// KindTransport indicates a full or closed queue.
	KindTransport ErrorKind = iota
	// KindProtocol indicates a malformed record or a correlation mismatch.
	KindProtocol
	// KindTimeout indicates no response within the active wait window.
	KindTimeout
	// KindRemote indicates a well-formed response carrying a failure status.
	KindRemote
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	case KindRemote:
		return "remote"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is a failed bridge round trip.
type Error struct {
	Kind          ErrorKind
	Op            types.Opcode
	CorrelationID uint32
	// Status is the remote status for KindRemote.
	Status types.Status
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s error (id %d)", e.Op, e.Kind, e.CorrelationID)
	if e.Kind == KindRemote {
		msg += ": status " + e.Status.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrTimeout for timeout errors.
func (e *Error) Is(target error) bool {
	return target == ErrTimeout && e.Kind == KindTimeout
}

// Status maps err to the status a caller observes: the fallback for
// transport and protocol errors, StatusDeviceLost for timeouts, and the
// remote status verbatim for remote failures.
func Status(err error, fallback types.Status) types.Status {
	var be *Error
	if err == nil {
		return types.StatusOK
	}
	if !errors.As(err, &be) {
		return fallback
	}
	switch be.Kind {
	case KindTimeout:
		return types.StatusDeviceLost
	case KindRemote:
		return be.Status
	default:
		return fallback
	}
}

func kindOf(err error) (ErrorKind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransport
}

// IsProtocol reports whether err is a protocol error.
func IsProtocol(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindProtocol
}

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRemote reports whether err is a remote failure.
func IsRemote(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRemote
}

// classify wraps a queue or codec error in the matching kind.
func classify(op types.Opcode, id uint32, err error) *Error {
	kind := KindTransport
	switch {
	case errors.Is(err, wire.ErrBadPayload), errors.Is(err, queue.ErrCorrupt), errors.Is(err, ErrUnknownCorrelation):
		kind = KindProtocol
	case errors.Is(err, queue.ErrCongested), errors.Is(err, queue.ErrClosed), errors.Is(err, queue.ErrTooLarge):
		kind = KindTransport
	}
	return &Error{Kind: kind, Op: op, CorrelationID: id, Err: err}
}
