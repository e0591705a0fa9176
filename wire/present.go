package wire

import "fmt"

// PresentParameters is D3DPRESENT_PARAMETERS. It travels field by field
// because hDeviceWindow is pointer-width and sits in the middle of the
// native structure, so 32-bit and 64-bit layouts differ at every later
// offset.
type PresentParameters struct {
	BackBufferWidth        uint32
	BackBufferHeight       uint32
	BackBufferFormat       uint32
	BackBufferCount        uint32
	MultiSampleType        uint32
	MultiSampleQuality     uint32
	SwapEffect             uint32
	DeviceWindow           uint64
	Windowed               bool
	EnableAutoDepthStencil bool
	AutoDepthStencilFormat uint32
	Flags                  uint32
	FullScreenRefreshRate  uint32
	PresentationInterval   uint32
}

// Native D3DPRESENT_PARAMETERS sizes.
const (
	PresentParametersSize32 = 56
	PresentParametersSize64 = 64
)

// AppendPresentParameters appends p field by field. The window handle is
// widened to a handle regardless of the sender's pointer width.
func (e *Encoder) AppendPresentParameters(p PresentParameters) {
	e.AppendU32(p.BackBufferWidth)
	e.AppendU32(p.BackBufferHeight)
	e.AppendU32(p.BackBufferFormat)
	e.AppendU32(p.BackBufferCount)
	e.AppendU32(p.MultiSampleType)
	e.AppendU32(p.MultiSampleQuality)
	e.AppendU32(p.SwapEffect)
	e.AppendHandle(p.DeviceWindow)
	e.AppendBool(p.Windowed)
	e.AppendBool(p.EnableAutoDepthStencil)
	e.AppendU32(p.AutoDepthStencilFormat)
	e.AppendU32(p.Flags)
	e.AppendU32(p.FullScreenRefreshRate)
	e.AppendU32(p.PresentationInterval)
}

// PresentParameters reads a structure written by AppendPresentParameters.
func (r *Reader) PresentParameters() PresentParameters {
	var p PresentParameters
	p.BackBufferWidth = r.U32()
	p.BackBufferHeight = r.U32()
	p.BackBufferFormat = r.U32()
	p.BackBufferCount = r.U32()
	p.MultiSampleType = r.U32()
	p.MultiSampleQuality = r.U32()
	p.SwapEffect = r.U32()
	p.DeviceWindow = r.Handle()
	p.Windowed = r.Bool()
	p.EnableAutoDepthStencil = r.Bool()
	p.AutoDepthStencilFormat = r.U32()
	p.Flags = r.U32()
	p.FullScreenRefreshRate = r.U32()
	p.PresentationInterval = r.U32()
	if r.err != nil {
		return PresentParameters{}
	}
	return p
}

// ParseNativePresentParameters decodes a native D3DPRESENT_PARAMETERS block
// taken from a 32-bit (56 byte) or 64-bit (64 byte) process. The size picks
// the layout; any other size is rejected.
func ParseNativePresentParameters(b []byte) (PresentParameters, error) {
	var hwndOff, hwndSize int
	switch len(b) {
	case PresentParametersSize32:
		hwndOff, hwndSize = 28, 4
	case PresentParametersSize64:
		// hDeviceWindow is 8-aligned, leaving 4 bytes of padding at 28.
		hwndOff, hwndSize = 32, 8
	default:
		return PresentParameters{}, &PayloadError{
			Kind: PayloadLengthMismatch,
			Msg: fmt.Sprintf("D3DPRESENT_PARAMETERS: %d bytes, want %d or %d",
				len(b), PresentParametersSize32, PresentParametersSize64),
		}
	}
	u32 := func(off int) uint32 { return le.Uint32(b[off:]) }
	p := PresentParameters{
		BackBufferWidth:    u32(0),
		BackBufferHeight:   u32(4),
		BackBufferFormat:   u32(8),
		BackBufferCount:    u32(12),
		MultiSampleType:    u32(16),
		MultiSampleQuality: u32(20),
		SwapEffect:         u32(24),
	}
	if hwndSize == 8 {
		p.DeviceWindow = le.Uint64(b[hwndOff:])
	} else {
		p.DeviceWindow = uint64(u32(hwndOff))
	}
	rest := hwndOff + hwndSize
	p.Windowed = u32(rest) != 0
	p.EnableAutoDepthStencil = u32(rest+4) != 0
	p.AutoDepthStencilFormat = u32(rest + 8)
	p.Flags = u32(rest + 12)
	p.FullScreenRefreshRate = u32(rest + 16)
	p.PresentationInterval = u32(rest + 20)
	return p, nil
}
