package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors for payload classification.
// Use errors.Is(err, ErrBadPayload) for any decode failure.
var (
	// ErrBadPayload matches every *PayloadError.
	ErrBadPayload = errors.New("bad payload")

	// ErrUnknownOpcode matches PayloadUnknownOpcode errors.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// PayloadErrorKind classifies decode errors.
type PayloadErrorKind int

const (
	// PayloadTruncated indicates a read past the end of the buffer.
	PayloadTruncated PayloadErrorKind = iota
	// PayloadLengthMismatch indicates a declared size that does not match
	// the bytes present or the expected structure size.
	PayloadLengthMismatch
	// PayloadUnknownOpcode indicates an opcode outside the supported set.
	PayloadUnknownOpcode
	// PayloadBadHeader indicates an unsupported wire version or data offset.
	PayloadBadHeader
)

func (k PayloadErrorKind) String() string {
	switch k {
	case PayloadTruncated:
		return "truncated"
	case PayloadLengthMismatch:
		return "length_mismatch"
	case PayloadUnknownOpcode:
		return "unknown_opcode"
	case PayloadBadHeader:
		return "bad_header"
	default:
		return fmt.Sprintf("PayloadErrorKind(%d)", int(k))
	}
}

// PayloadError represents a command or response decoding error.
type PayloadError struct {
	Kind PayloadErrorKind
	Msg  string
	Err  error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// Is reports ErrBadPayload for every kind, and ErrUnknownOpcode for
// PayloadUnknownOpcode.
func (e *PayloadError) Is(target error) bool {
	switch target {
	case ErrBadPayload:
		return true
	case ErrUnknownOpcode:
		return e.Kind == PayloadUnknownOpcode
	}
	return false
}

// IsLengthMismatch returns true if err is a PayloadLengthMismatch error.
func IsLengthMismatch(err error) bool {
	var pe *PayloadError
	if errors.As(err, &pe) {
		return pe.Kind == PayloadLengthMismatch
	}
	return false
}

func truncated(what string, need, have int) *PayloadError {
	return &PayloadError{
		Kind: PayloadTruncated,
		Msg:  fmt.Sprintf("%s: need %d bytes, have %d", what, need, have),
	}
}
