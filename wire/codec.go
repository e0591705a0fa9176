package wire

import (
	"fmt"
	"math"

	"github.com/pithecene-io/tether/types"
)

// Encoder builds one command record.
// Fields must be appended in the order defined for the opcode.
type Encoder struct {
	op  types.Opcode
	buf []byte
}

// NewEncoder starts a command for op applied to target (0 for global calls).
// The correlation id is left 0; the sender patches it in before pushing.
func NewEncoder(op types.Opcode, target uint64) *Encoder {
	e := &Encoder{op: op, buf: make([]byte, CommandHeaderSize, CommandHeaderSize+32)}
	le.PutUint16(e.buf[0:2], uint16(op))
	if op.ExpectsReply() {
		le.PutUint16(e.buf[2:4], FlagReply)
	}
	le.PutUint64(e.buf[8:16], target)
	le.PutUint16(e.buf[20:22], types.WireVersion)
	return e
}

// Opcode returns the opcode being encoded.
func (e *Encoder) Opcode() types.Opcode { return e.op }

// Target returns the target object id written into the header.
func (e *Encoder) Target() uint64 { return le.Uint64(e.buf[8:16]) }

// AppendU8 appends one byte.
func (e *Encoder) AppendU8(v uint8) { e.buf = append(e.buf, v) }

// AppendU16 appends a uint16.
func (e *Encoder) AppendU16(v uint16) { e.buf = le.AppendUint16(e.buf, v) }

// AppendU32 appends a uint32.
func (e *Encoder) AppendU32(v uint32) { e.buf = le.AppendUint32(e.buf, v) }

// AppendU64 appends a uint64.
func (e *Encoder) AppendU64(v uint64) { e.buf = le.AppendUint64(e.buf, v) }

// AppendI32 appends an int32.
func (e *Encoder) AppendI32(v int32) { e.buf = le.AppendUint32(e.buf, uint32(v)) }

// AppendF32 appends a float32 as its IEEE-754 bits.
func (e *Encoder) AppendF32(v float32) { e.buf = le.AppendUint32(e.buf, math.Float32bits(v)) }

// AppendBool appends a bool as a uint32 (0 or 1), matching the native BOOL.
func (e *Encoder) AppendBool(v bool) {
	var u uint32
	if v {
		u = 1
	}
	e.AppendU32(u)
}

// AppendHandle appends a remote object handle or pointer as a uint64.
func (e *Encoder) AppendHandle(h uint64) { e.AppendU64(h) }

// AppendBytes appends a u32 length prefix followed by b.
func (e *Encoder) AppendBytes(b []byte) {
	e.AppendU32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// Args returns the argument bytes appended so far.
func (e *Encoder) Args() []byte {
	return e.buf[CommandHeaderSize:]
}

// Finalize writes the argument length and returns the record.
// The Encoder must not be used afterwards.
func (e *Encoder) Finalize() []byte {
	le.PutUint32(e.buf[16:20], uint32(len(e.buf)-CommandHeaderSize))
	b := e.buf
	e.buf = nil
	return b
}

// Reader decodes fixed-order fields from an argument or payload blob.
// The first failure is sticky: later reads return zero values and Err
// reports the original error.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over b. b is not copied.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = truncated(what, n, len(r.buf)-r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// U8 reads one byte.
func (r *Reader) U8() uint8 {
	if b := r.take(1, "u8"); b != nil {
		return b[0]
	}
	return 0
}

// U16 reads a uint16.
func (r *Reader) U16() uint16 {
	if b := r.take(2, "u16"); b != nil {
		return le.Uint16(b)
	}
	return 0
}

// U32 reads a uint32.
func (r *Reader) U32() uint32 {
	if b := r.take(4, "u32"); b != nil {
		return le.Uint32(b)
	}
	return 0
}

// U64 reads a uint64.
func (r *Reader) U64() uint64 {
	if b := r.take(8, "u64"); b != nil {
		return le.Uint64(b)
	}
	return 0
}

// I32 reads an int32.
func (r *Reader) I32() int32 { return int32(r.U32()) }

// F32 reads a float32.
func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

// Bool reads a uint32 BOOL.
func (r *Reader) Bool() bool { return r.U32() != 0 }

// Handle reads a uint64 handle.
func (r *Reader) Handle() uint64 { return r.U64() }

// Bytes reads a length-prefixed byte range and returns a copy.
func (r *Reader) Bytes() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}
	b := r.take(int(n), "length-prefixed bytes")
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Struct reads a length-prefixed raw OS structure into dst, which must be
// exactly l.Size bytes. Size differences within l's padding tolerance are
// accepted: extra trailing bytes are skipped and missing trailing bytes are
// zeroed.
func (r *Reader) Struct(l Layout, dst []byte) {
	if r.err != nil {
		return
	}
	if len(dst) != l.Size {
		r.err = &PayloadError{
			Kind: PayloadLengthMismatch,
			Msg:  fmt.Sprintf("%s: destination is %d bytes, layout is %d", l.Name, len(dst), l.Size),
		}
		return
	}
	n := r.U32()
	if r.err != nil {
		return
	}
	if err := l.Check(int(n)); err != nil {
		r.err = err
		return
	}
	src := r.take(int(n), l.Name)
	if src == nil {
		return
	}
	c := copy(dst, src)
	clear(dst[c:])
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Err returns the first decode error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Done returns the first decode error, or a PayloadLengthMismatch if unread
// bytes remain.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.Remaining() != 0 {
		return &PayloadError{
			Kind: PayloadLengthMismatch,
			Msg:  fmt.Sprintf("%d trailing bytes after last field", r.Remaining()),
		}
	}
	return nil
}

// PayloadBuilder builds a response payload in the same field encoding as
// Encoder. Used by the server side.
type PayloadBuilder struct {
	enc Encoder
}

// NewPayloadBuilder returns an empty builder.
func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{enc: Encoder{buf: make([]byte, 0, 32)}}
}

// AppendU32 appends a uint32.
func (p *PayloadBuilder) AppendU32(v uint32) { p.enc.AppendU32(v) }

// AppendU64 appends a uint64.
func (p *PayloadBuilder) AppendU64(v uint64) { p.enc.AppendU64(v) }

// AppendI32 appends an int32.
func (p *PayloadBuilder) AppendI32(v int32) { p.enc.AppendI32(v) }

// AppendBytes appends length-prefixed bytes.
func (p *PayloadBuilder) AppendBytes(b []byte) { p.enc.AppendBytes(b) }

// Bytes returns the built payload.
func (p *PayloadBuilder) Bytes() []byte { return p.enc.buf }
