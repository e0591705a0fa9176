package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pithecene-io/tether/types"
)

func TestEncoder_CommandRoundtrip(t *testing.T) {
	enc := NewEncoder(types.OpCheckDeviceFormat, 0)
	enc.AppendU32(1)          // adapter
	enc.AppendU32(2)          // device type
	enc.AppendU32(22)         // adapter format
	enc.AppendU32(0x00000001) // usage
	enc.AppendU32(3)          // resource type
	enc.AppendU32(827611204)  // check format
	rec := enc.Finalize()
	SetCorrelationID(rec, 77)

	cmd, err := DecodeCommand(rec)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if cmd.Opcode != types.OpCheckDeviceFormat {
		t.Errorf("Opcode = %s, want CheckDeviceFormat", cmd.Opcode)
	}
	if cmd.CorrelationID != 77 {
		t.Errorf("CorrelationID = %d, want 77", cmd.CorrelationID)
	}
	if !cmd.ExpectsReply() {
		t.Error("CheckDeviceFormat must carry the reply flag")
	}

	r := NewReader(cmd.Args)
	got := []uint32{r.U32(), r.U32(), r.U32(), r.U32(), r.U32(), r.U32()}
	if err := r.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}
	want := []uint32{1, 2, 22, 1, 3, 827611204}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestEncoder_HandleIsPointerWidthIndependent(t *testing.T) {
	enc := NewEncoder(types.OpDeviceDestroy, 0xDEADBEEF)
	enc.AppendHandle(0x12345678)
	rec := enc.Finalize()

	if len(rec) != CommandHeaderSize+8 {
		t.Fatalf("record length = %d, want %d", len(rec), CommandHeaderSize+8)
	}
	cmd, err := DecodeCommand(rec)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if cmd.TargetID != 0xDEADBEEF {
		t.Errorf("TargetID = %#x", cmd.TargetID)
	}
	if cmd.ExpectsReply() {
		t.Error("Device.Destroy must not carry the reply flag")
	}
	if h := NewReader(cmd.Args).Handle(); h != 0x12345678 {
		t.Errorf("Handle = %#x", h)
	}
}

func TestEncoder_AppendBytes(t *testing.T) {
	enc := NewEncoder(types.OpPing, 0)
	enc.AppendBytes([]byte("hello"))
	enc.AppendF32(1.5)
	enc.AppendBool(true)
	cmd, err := DecodeCommand(enc.Finalize())
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	r := NewReader(cmd.Args)
	if got := r.Bytes(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("Bytes = %q", got)
	}
	if got := r.F32(); got != 1.5 {
		t.Errorf("F32 = %v", got)
	}
	if !r.Bool() {
		t.Error("Bool = false")
	}
	if err := r.Done(); err != nil {
		t.Errorf("Done: %v", err)
	}
}

func TestDecodeCommand_Errors(t *testing.T) {
	valid := func() []byte {
		enc := NewEncoder(types.OpPing, 0)
		enc.AppendU32(1)
		return enc.Finalize()
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		kind   PayloadErrorKind
	}{
		{
			name:   "short header",
			mutate: func(b []byte) []byte { return b[:10] },
			kind:   PayloadTruncated,
		},
		{
			name:   "declared length too long",
			mutate: func(b []byte) []byte { le.PutUint32(b[16:20], 64); return b },
			kind:   PayloadLengthMismatch,
		},
		{
			name:   "trailing bytes",
			mutate: func(b []byte) []byte { return append(b, 0, 0) },
			kind:   PayloadLengthMismatch,
		},
		{
			name:   "unknown opcode",
			mutate: func(b []byte) []byte { le.PutUint16(b[0:2], 0x7777); return b },
			kind:   PayloadUnknownOpcode,
		},
		{
			name:   "wire version",
			mutate: func(b []byte) []byte { le.PutUint16(b[20:22], 0); return b },
			kind:   PayloadBadHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand(tt.mutate(valid()))
			var pe *PayloadError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PayloadError, got %v", err)
			}
			if pe.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", pe.Kind, tt.kind)
			}
			if !errors.Is(err, ErrBadPayload) {
				t.Error("errors.Is(err, ErrBadPayload) = false")
			}
		})
	}
}

func TestResponse_Roundtrip(t *testing.T) {
	rec := EncodeResponse(types.OpGetAdapterCount, 9, types.StatusOK, []byte{2, 0, 0, 0})
	resp, err := DecodeResponse(rec)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.CorrelationID != 9 || resp.Status != types.StatusOK {
		t.Errorf("resp = %+v", resp)
	}
	if n := NewReader(resp.Payload).U32(); n != 2 {
		t.Errorf("payload = %d, want 2", n)
	}

	failed := EncodeResponse(types.OpCreateDevice, 10, types.StatusDeviceLost, nil)
	resp, err = DecodeResponse(failed)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if resp.Status != types.StatusDeviceLost {
		t.Errorf("Status = %s, want DEVICELOST", resp.Status)
	}
}

func TestDecodeResponse_DataOffset(t *testing.T) {
	rec := EncodeResponse(types.OpPing, 1, types.StatusOK, nil)
	le.PutUint32(rec[12:16], 24)
	_, err := DecodeResponse(rec)
	var pe *PayloadError
	if !errors.As(err, &pe) || pe.Kind != PayloadBadHeader {
		t.Fatalf("expected PayloadBadHeader, got %v", err)
	}
}

func TestPeekHeader_SameOffsetsBothDirections(t *testing.T) {
	enc := NewEncoder(types.OpGetDeviceCaps, 0)
	cmd := enc.Finalize()
	SetCorrelationID(cmd, 42)
	resp := EncodeResponse(types.OpGetDeviceCaps, 42, types.StatusOK, nil)

	for name, rec := range map[string][]byte{"command": cmd, "response": resp} {
		h, err := PeekHeader(rec)
		if err != nil {
			t.Fatalf("%s: PeekHeader failed: %v", name, err)
		}
		if h.Opcode != types.OpGetDeviceCaps || h.CorrelationID != 42 || h.Length != len(rec) {
			t.Errorf("%s: header = %+v", name, h)
		}
	}

	if _, err := PeekHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short record")
	}
}

func TestReader_StickyError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_ = r.U32()
	if r.Err() == nil {
		t.Fatal("expected truncation error")
	}
	if v := r.U8(); v != 0 {
		t.Errorf("read after error = %d, want 0", v)
	}
	var pe *PayloadError
	if !errors.As(r.Err(), &pe) || pe.Kind != PayloadTruncated {
		t.Errorf("Err = %v, want PayloadTruncated", r.Err())
	}
}

func TestReader_BytesLengthBeyondBuffer(t *testing.T) {
	b := le.AppendUint32(nil, 1000)
	b = append(b, 1, 2, 3)
	r := NewReader(b)
	if got := r.Bytes(); got != nil {
		t.Errorf("Bytes = %v, want nil", got)
	}
	if !errors.Is(r.Err(), ErrBadPayload) {
		t.Errorf("Err = %v, want ErrBadPayload", r.Err())
	}
}

func TestPayloadError_ErrorMessage(t *testing.T) {
	inner := errors.New("inner")
	e := &PayloadError{Kind: PayloadTruncated, Msg: "outer", Err: inner}
	if e.Error() != "outer: inner" {
		t.Errorf("Error() = %q", e.Error())
	}
	if !errors.Is(e, inner) {
		t.Error("Unwrap chain broken")
	}
	if errors.Is(e, ErrUnknownOpcode) {
		t.Error("truncated error must not match ErrUnknownOpcode")
	}
}
