// Package wire implements the command and response encoding shared by the
// client and server processes.
//
// All integers are little-endian and fixed-width. Handles and pointers are
// always carried as uint64 so that the encoding is identical regardless of
// the native pointer width of either process.
//
// Command record:
//
//	0  u16 opcode
//	2  u16 flags
//	4  u32 correlation id
//	8  u64 target id
//	16 u32 args length
//	20 u16 wire version
//	22 u16 reserved
//	24 args...
//
// Response record:
//
//	0  u16 opcode
//	2  u16 wire version
//	4  u32 correlation id
//	8  i32 status
//	12 u32 data offset (always ResponseHeaderSize)
//	16 u32 payload length
//	20 payload...
//
// Opcode and correlation id sit at the same offsets in both records so a
// queue can peek at either without knowing its direction.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/pithecene-io/tether/types"
)

// Header sizes in bytes.
const (
	CommandHeaderSize  = 24
	ResponseHeaderSize = 20
	// MinHeaderSize is the smallest prefix PeekHeader needs.
	MinHeaderSize = 8
)

// Command flags.
const (
	// FlagReply marks a command whose sender expects exactly one Response.
	FlagReply uint16 = 1 << 0
)

var le = binary.LittleEndian

// Header is the direction-independent prefix of a record.
type Header struct {
	Opcode        types.Opcode
	CorrelationID uint32
	// Length is the total record length including the header.
	Length int
}

// PeekHeader reads opcode and correlation id without consuming or
// validating the rest of the record.
func PeekHeader(b []byte) (Header, error) {
	if len(b) < MinHeaderSize {
		return Header{}, truncated("record header", MinHeaderSize, len(b))
	}
	return Header{
		Opcode:        types.Opcode(le.Uint16(b[0:2])),
		CorrelationID: le.Uint32(b[4:8]),
		Length:        len(b),
	}, nil
}

// SetCorrelationID patches the correlation id of an encoded command in place.
func SetCorrelationID(b []byte, id uint32) {
	le.PutUint32(b[4:8], id)
}

// Command is a decoded client-to-server call.
// Args aliases the decoded buffer; callers copy out what they keep.
type Command struct {
	Opcode        types.Opcode
	Flags         uint16
	CorrelationID uint32
	TargetID      uint64
	Args          []byte
}

// ExpectsReply reports whether the sender is waiting for a Response.
func (c *Command) ExpectsReply() bool {
	return c.Flags&FlagReply != 0
}

// Response is a decoded server-to-client result.
// Payload aliases the decoded buffer; callers copy out what they keep.
type Response struct {
	Opcode        types.Opcode
	CorrelationID uint32
	Status        types.Status
	Payload       []byte
}

// DecodeCommand decodes and validates a command record.
func DecodeCommand(b []byte) (*Command, error) {
	if len(b) < CommandHeaderSize {
		return nil, truncated("command header", CommandHeaderSize, len(b))
	}
	if v := le.Uint16(b[20:22]); v != types.WireVersion {
		return nil, &PayloadError{
			Kind: PayloadBadHeader,
			Msg:  fmt.Sprintf("command wire version %d, want %d", v, types.WireVersion),
		}
	}
	op := types.Opcode(le.Uint16(b[0:2]))
	if !op.Known() {
		return nil, &PayloadError{
			Kind: PayloadUnknownOpcode,
			Msg:  fmt.Sprintf("command opcode %s", op),
		}
	}
	argsLen := le.Uint32(b[16:20])
	if int(argsLen) != len(b)-CommandHeaderSize {
		return nil, &PayloadError{
			Kind: PayloadLengthMismatch,
			Msg:  fmt.Sprintf("%s: declared %d argument bytes, record carries %d", op, argsLen, len(b)-CommandHeaderSize),
		}
	}
	return &Command{
		Opcode:        op,
		Flags:         le.Uint16(b[2:4]),
		CorrelationID: le.Uint32(b[4:8]),
		TargetID:      le.Uint64(b[8:16]),
		Args:          b[CommandHeaderSize:],
	}, nil
}

// EncodeResponse builds a response record.
func EncodeResponse(op types.Opcode, correlationID uint32, status types.Status, payload []byte) []byte {
	b := make([]byte, ResponseHeaderSize+len(payload))
	le.PutUint16(b[0:2], uint16(op))
	le.PutUint16(b[2:4], types.WireVersion)
	le.PutUint32(b[4:8], correlationID)
	le.PutUint32(b[8:12], uint32(status))
	le.PutUint32(b[12:16], ResponseHeaderSize)
	le.PutUint32(b[16:20], uint32(len(payload)))
	copy(b[ResponseHeaderSize:], payload)
	return b
}

// DecodeResponse decodes and validates a response record.
func DecodeResponse(b []byte) (*Response, error) {
	if len(b) < ResponseHeaderSize {
		return nil, truncated("response header", ResponseHeaderSize, len(b))
	}
	if v := le.Uint16(b[2:4]); v != types.WireVersion {
		return nil, &PayloadError{
			Kind: PayloadBadHeader,
			Msg:  fmt.Sprintf("response wire version %d, want %d", v, types.WireVersion),
		}
	}
	if off := le.Uint32(b[12:16]); off != ResponseHeaderSize {
		return nil, &PayloadError{
			Kind: PayloadBadHeader,
			Msg:  fmt.Sprintf("response data offset %d, want %d", off, ResponseHeaderSize),
		}
	}
	op := types.Opcode(le.Uint16(b[0:2]))
	if !op.Known() {
		return nil, &PayloadError{
			Kind: PayloadUnknownOpcode,
			Msg:  fmt.Sprintf("response opcode %s", op),
		}
	}
	n := le.Uint32(b[16:20])
	if int(n) != len(b)-ResponseHeaderSize {
		return nil, &PayloadError{
			Kind: PayloadLengthMismatch,
			Msg:  fmt.Sprintf("%s: declared %d payload bytes, record carries %d", op, n, len(b)-ResponseHeaderSize),
		}
	}
	return &Response{
		Opcode:        op,
		CorrelationID: le.Uint32(b[4:8]),
		Status:        types.Status(int32(le.Uint32(b[8:12]))),
		Payload:       b[ResponseHeaderSize:],
	}, nil
}
