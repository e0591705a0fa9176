package server

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/wire"
)

// DisplayMode is one adapter display mode.
type DisplayMode struct {
	Width, Height, RefreshRate, Format uint32
}

func (m DisplayMode) bytes() []byte {
	b := make([]byte, 0, wire.LayoutDisplayMode.Size)
	b = binary.LittleEndian.AppendUint32(b, m.Width)
	b = binary.LittleEndian.AppendUint32(b, m.Height)
	b = binary.LittleEndian.AppendUint32(b, m.RefreshRate)
	return binary.LittleEndian.AppendUint32(b, m.Format)
}

// Adapter describes one adapter exposed by Reference.
type Adapter struct {
	Description string
	Modes       []DisplayMode
	// Formats lists the surface formats CheckDeviceFormat accepts.
	Formats []uint32
	// MaxSamples is the highest multisample type supported.
	MaxSamples uint32
}

// Reference is a self-contained Handler that models a small adapter and
// device object table. It stands in for the translation layer in the CLI
// and in tests.
type Reference struct {
	mu       sync.Mutex
	adapters []Adapter
	nextID   uint64
	devices  map[uint64]*refDevice
	textures map[uint64]uint64 // texture -> owning device
	logger   *log.Logger
}

type refDevice struct {
	adapter  uint32
	params   wire.PresentParameters
	inScene  bool
	presents int64
	draws    int64
}

// DefaultAdapter is the adapter Reference exposes when given none.
var DefaultAdapter = Adapter{
	Description: "tether reference adapter",
	Modes: []DisplayMode{
		{Width: 1280, Height: 720, RefreshRate: 60, Format: 22},
		{Width: 1920, Height: 1080, RefreshRate: 60, Format: 22},
		{Width: 2560, Height: 1440, RefreshRate: 144, Format: 22},
	},
	Formats:    []uint32{21, 22, 23, 75, 77},
	MaxSamples: 8,
}

// NewReference creates a Reference over adapters.
func NewReference(logger *log.Logger, adapters ...Adapter) *Reference {
	if len(adapters) == 0 {
		adapters = []Adapter{DefaultAdapter}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Reference{
		adapters: adapters,
		devices:  make(map[uint64]*refDevice),
		textures: make(map[uint64]uint64),
		logger:   logger,
	}
}

// Live returns the number of live devices and textures.
func (r *Reference) Live() (devices, textures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices), len(r.textures)
}

// PresentParameters returns the parameters device was created or last
// reset with.
func (r *Reference) PresentParameters(device uint64) (wire.PresentParameters, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[device]
	if !ok {
		return wire.PresentParameters{}, false
	}
	return dev.params, true
}

// maxBackBuffers is D3DPRESENT_BACK_BUFFERS_MAX.
const maxBackBuffers = 3

// Handle executes cmd against the modelled adapter.
func (r *Reference) Handle(_ context.Context, cmd *wire.Command) (types.Status, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rd := wire.NewReader(cmd.Args)
	status, payload := r.handle(cmd, rd)
	// Failing paths may return before reading every argument.
	if err := rd.Done(); err != nil && !status.Failed() {
		r.logger.Error("bad arguments", map[string]any{
			"opcode": cmd.Opcode.String(),
			"error":  err.Error(),
		})
		return types.StatusInvalidCall, nil
	}
	return status, payload
}

func (r *Reference) adapter(i uint32) (*Adapter, bool) {
	if int(i) >= len(r.adapters) {
		return nil, false
	}
	return &r.adapters[i], true
}

func (r *Reference) handle(cmd *wire.Command, rd *wire.Reader) (types.Status, []byte) {
	out := wire.NewPayloadBuilder()

	switch cmd.Opcode {
	case types.OpPing:
		return types.StatusOK, nil

	case types.OpGetAdapterCount:
		out.AppendU32(uint32(len(r.adapters)))
		return types.StatusOK, out.Bytes()

	case types.OpGetAdapterIdentifier:
		idx, _ := rd.U32(), rd.U32()
		a, ok := r.adapter(idx)
		if !ok {
			return types.StatusInvalidCall, nil
		}
		ident := make([]byte, wire.LayoutAdapterIdentifier.Size)
		copy(ident, a.Description)
		out.AppendBytes(ident)
		return types.StatusOK, out.Bytes()

	case types.OpGetAdapterModeCount:
		idx, format := rd.U32(), rd.U32()
		a, ok := r.adapter(idx)
		if !ok {
			return types.StatusInvalidCall, nil
		}
		var n uint32
		for _, m := range a.Modes {
			if m.Format == format {
				n++
			}
		}
		out.AppendU32(n)
		return types.StatusOK, out.Bytes()

	case types.OpEnumAdapterModes:
		idx, format, mode := rd.U32(), rd.U32(), rd.U32()
		a, ok := r.adapter(idx)
		if !ok {
			return types.StatusInvalidCall, nil
		}
		var n uint32
		for _, m := range a.Modes {
			if m.Format != format {
				continue
			}
			if n == mode {
				out.AppendBytes(m.bytes())
				return types.StatusOK, out.Bytes()
			}
			n++
		}
		return types.StatusInvalidCall, nil

	case types.OpGetAdapterDisplayMode:
		a, ok := r.adapter(rd.U32())
		if !ok || len(a.Modes) == 0 {
			return types.StatusInvalidCall, nil
		}
		out.AppendBytes(a.Modes[len(a.Modes)-1].bytes())
		return types.StatusOK, out.Bytes()

	case types.OpCheckDeviceType:
		idx, _, displayFmt, backFmt, _ := rd.U32(), rd.U32(), rd.U32(), rd.U32(), rd.Bool()
		a, ok := r.adapter(idx)
		if !ok {
			return types.StatusInvalidCall, nil
		}
		return r.formatStatus(a, displayFmt, backFmt), nil

	case types.OpCheckDeviceFormat:
		idx, _, adapterFmt, _, _, checkFmt := rd.U32(), rd.U32(), rd.U32(), rd.U32(), rd.U32(), rd.U32()
		a, ok := r.adapter(idx)
		if !ok {
			return types.StatusInvalidCall, nil
		}
		return r.formatStatus(a, adapterFmt, checkFmt), nil

	case types.OpCheckDeviceMultiSampleType:
		idx, _, surfaceFmt, _, samples := rd.U32(), rd.U32(), rd.U32(), rd.Bool(), rd.U32()
		a, ok := r.adapter(idx)
		if !ok {
			return types.StatusInvalidCall, nil
		}
		if st := r.formatStatus(a, surfaceFmt); st.Failed() || samples > a.MaxSamples {
			return types.StatusNotAvailable, nil
		}
		out.AppendU32(1)
		return types.StatusOK, out.Bytes()

	case types.OpCheckDepthStencilMatch:
		idx, _, adapterFmt, rtFmt, dsFmt := rd.U32(), rd.U32(), rd.U32(), rd.U32(), rd.U32()
		a, ok := r.adapter(idx)
		if !ok {
			return types.StatusInvalidCall, nil
		}
		return r.formatStatus(a, adapterFmt, rtFmt, dsFmt), nil

	case types.OpGetDeviceCaps:
		idx, devType := rd.U32(), rd.U32()
		if _, ok := r.adapter(idx); !ok {
			return types.StatusInvalidCall, nil
		}
		caps := make([]byte, wire.LayoutCaps.Size)
		binary.LittleEndian.PutUint32(caps[0:], devType)
		binary.LittleEndian.PutUint32(caps[4:], idx)
		out.AppendBytes(caps)
		return types.StatusOK, out.Bytes()

	case types.OpCreateDevice:
		idx, _, _, _ := rd.U32(), rd.U32(), rd.Handle(), rd.U32()
		pp := rd.PresentParameters()
		if rd.Err() != nil || pp.BackBufferCount > maxBackBuffers {
			return types.StatusInvalidCall, nil
		}
		if _, ok := r.adapter(idx); !ok {
			return types.StatusInvalidCall, nil
		}
		r.nextID++
		r.devices[r.nextID] = &refDevice{adapter: idx, params: pp}
		out.AppendU64(r.nextID)
		return types.StatusOK, out.Bytes()
	}

	return r.handleDevice(cmd, rd, out)
}

func (r *Reference) handleDevice(cmd *wire.Command, rd *wire.Reader, out *wire.PayloadBuilder) (types.Status, []byte) {
	if cmd.Opcode == types.OpTextureDestroy {
		if _, ok := r.textures[cmd.TargetID]; !ok {
			r.logger.Warn("destroy of unknown texture", map[string]any{"target": cmd.TargetID})
			return types.StatusInvalidCall, nil
		}
		delete(r.textures, cmd.TargetID)
		return types.StatusOK, nil
	}

	dev, ok := r.devices[cmd.TargetID]
	if !ok {
		r.logger.Warn("command for unknown device", map[string]any{
			"opcode": cmd.Opcode.String(),
			"target": cmd.TargetID,
		})
		return types.StatusInvalidCall, nil
	}

	switch cmd.Opcode {
	case types.OpDeviceDestroy:
		for tex, owner := range r.textures {
			if owner == cmd.TargetID {
				delete(r.textures, tex)
			}
		}
		delete(r.devices, cmd.TargetID)
		return types.StatusOK, nil

	case types.OpDeviceReset:
		pp := rd.PresentParameters()
		if rd.Err() != nil || pp.BackBufferCount > maxBackBuffers {
			return types.StatusInvalidCall, nil
		}
		dev.params = pp
		dev.inScene = false
		return types.StatusOK, nil

	case types.OpDevicePresent:
		_ = rd.Handle()
		dev.presents++
		return types.StatusOK, nil

	case types.OpDeviceTestCooperativeLevel:
		return types.StatusOK, nil

	case types.OpDeviceBeginScene:
		if dev.inScene {
			return types.StatusInvalidCall, nil
		}
		dev.inScene = true
		return types.StatusOK, nil

	case types.OpDeviceEndScene:
		if !dev.inScene {
			return types.StatusInvalidCall, nil
		}
		dev.inScene = false
		return types.StatusOK, nil

	case types.OpDeviceClear:
		_, _, _, _, _ = rd.U32(), rd.U32(), rd.U32(), rd.F32(), rd.U32()
		return types.StatusOK, nil

	case types.OpDeviceSetRenderState:
		_, _ = rd.U32(), rd.U32()
		return types.StatusOK, nil

	case types.OpDeviceDrawPrimitive:
		_, _, _ = rd.U32(), rd.U32(), rd.U32()
		dev.draws++
		return types.StatusOK, nil

	case types.OpDeviceCreateTexture:
		w, h, _, _, _, _ := rd.U32(), rd.U32(), rd.U32(), rd.U32(), rd.U32(), rd.U32()
		if w == 0 || h == 0 {
			return types.StatusInvalidCall, nil
		}
		r.nextID++
		r.textures[r.nextID] = cmd.TargetID
		out.AppendU64(r.nextID)
		return types.StatusOK, out.Bytes()
	}

	return types.StatusInvalidCall, nil
}

// formatStatus is StatusOK when every non-zero format is supported.
func (r *Reference) formatStatus(a *Adapter, formats ...uint32) types.Status {
	for _, f := range formats {
		if f == 0 {
			continue
		}
		supported := false
		for _, s := range a.Formats {
			if s == f {
				supported = true
				break
			}
		}
		if !supported {
			return types.StatusNotAvailable
		}
	}
	return types.StatusOK
}
