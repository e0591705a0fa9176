package bridge

import (
	"context"

	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/wire"
)

// Typed wrappers for the common adapter and device calls. Each one fixes
// the argument order of its opcode; the server decodes in the same order.
// Failed remote statuses are returned as KindRemote errors.

// DisplayMode is a decoded D3DDISPLAYMODE.
type DisplayMode struct {
	Width, Height, RefreshRate, Format uint32
}

func (c *Client) decode(res Result, err error, fn func(*wire.Reader)) error {
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	rd := wire.NewReader(res.Payload)
	fn(rd)
	if err := rd.Done(); err != nil {
		c.metrics.IncProtocolError()
		c.logger.Error("malformed response payload", map[string]any{
			"opcode":         res.Op.String(),
			"correlation_id": res.CorrelationID,
			"error":          err.Error(),
		})
		return &Error{Kind: KindProtocol, Op: res.Op, CorrelationID: res.CorrelationID, Err: err}
	}
	return nil
}

// GetAdapterCount returns the number of adapters on the server.
func (c *Client) GetAdapterCount(ctx context.Context) (uint32, error) {
	res, err := c.CallCached(ctx, wire.NewEncoder(types.OpGetAdapterCount, 0), types.StatusFail)
	var n uint32
	err = c.decode(res, err, func(rd *wire.Reader) { n = rd.U32() })
	return n, err
}

// GetAdapterIdentifier returns the raw D3DADAPTER_IDENTIFIER9 block.
func (c *Client) GetAdapterIdentifier(ctx context.Context, adapter, flags uint32) ([]byte, error) {
	enc := wire.NewEncoder(types.OpGetAdapterIdentifier, 0)
	enc.AppendU32(adapter)
	enc.AppendU32(flags)
	res, err := c.CallCached(ctx, enc, types.StatusInvalidCall)
	ident := make([]byte, wire.LayoutAdapterIdentifier.Size)
	err = c.decode(res, err, func(rd *wire.Reader) { rd.Struct(wire.LayoutAdapterIdentifier, ident) })
	return ident, err
}

// GetAdapterModeCount returns the number of display modes for format.
func (c *Client) GetAdapterModeCount(ctx context.Context, adapter, format uint32) (uint32, error) {
	enc := wire.NewEncoder(types.OpGetAdapterModeCount, 0)
	enc.AppendU32(adapter)
	enc.AppendU32(format)
	res, err := c.CallCached(ctx, enc, types.StatusInvalidCall)
	var n uint32
	err = c.decode(res, err, func(rd *wire.Reader) { n = rd.U32() })
	return n, err
}

// EnumAdapterModes returns display mode number mode for format.
func (c *Client) EnumAdapterModes(ctx context.Context, adapter, format, mode uint32) (DisplayMode, error) {
	enc := wire.NewEncoder(types.OpEnumAdapterModes, 0)
	enc.AppendU32(adapter)
	enc.AppendU32(format)
	enc.AppendU32(mode)
	res, err := c.CallCached(ctx, enc, types.StatusInvalidCall)
	return c.displayMode(res, err)
}

// GetAdapterDisplayMode returns the adapter's current mode. Not cached.
func (c *Client) GetAdapterDisplayMode(ctx context.Context, adapter uint32) (DisplayMode, error) {
	enc := wire.NewEncoder(types.OpGetAdapterDisplayMode, 0)
	enc.AppendU32(adapter)
	res, err := c.Call(ctx, enc, types.StatusInvalidCall)
	return c.displayMode(res, err)
}

func (c *Client) displayMode(res Result, err error) (DisplayMode, error) {
	raw := make([]byte, wire.LayoutDisplayMode.Size)
	err = c.decode(res, err, func(rd *wire.Reader) { rd.Struct(wire.LayoutDisplayMode, raw) })
	if err != nil {
		return DisplayMode{}, err
	}
	r := wire.NewReader(raw)
	return DisplayMode{Width: r.U32(), Height: r.U32(), RefreshRate: r.U32(), Format: r.U32()}, nil
}

// CheckDeviceFormat reports whether checkFormat is usable as a resource of
// rtype with usage on adapter. The result is the remote status.
func (c *Client) CheckDeviceFormat(ctx context.Context, adapter, devType, adapterFormat, usage, rtype, checkFormat uint32) types.Status {
	enc := wire.NewEncoder(types.OpCheckDeviceFormat, 0)
	enc.AppendU32(adapter)
	enc.AppendU32(devType)
	enc.AppendU32(adapterFormat)
	enc.AppendU32(usage)
	enc.AppendU32(rtype)
	enc.AppendU32(checkFormat)
	res, err := c.CallCached(ctx, enc, types.StatusNotAvailable)
	if err != nil {
		return Status(err, types.StatusNotAvailable)
	}
	return res.Status
}

// GetDeviceCaps returns the raw D3DCAPS9 block.
func (c *Client) GetDeviceCaps(ctx context.Context, adapter, devType uint32) ([]byte, error) {
	enc := wire.NewEncoder(types.OpGetDeviceCaps, 0)
	enc.AppendU32(adapter)
	enc.AppendU32(devType)
	res, err := c.CallCached(ctx, enc, types.StatusInvalidCall)
	caps := make([]byte, wire.LayoutCaps.Size)
	err = c.decode(res, err, func(rd *wire.Reader) { rd.Struct(wire.LayoutCaps, caps) })
	return caps, err
}

// CreateDevice creates a remote device and returns its handle.
// Callers holding a native block decode it with
// wire.ParseNativePresentParameters first.
func (c *Client) CreateDevice(ctx context.Context, adapter, devType uint32, focusWindow uint64, behavior uint32, pp wire.PresentParameters) (uint64, error) {
	enc := wire.NewEncoder(types.OpCreateDevice, 0)
	enc.AppendU32(adapter)
	enc.AppendU32(devType)
	enc.AppendHandle(focusWindow)
	enc.AppendU32(behavior)
	enc.AppendPresentParameters(pp)
	res, err := c.Call(ctx, enc, types.StatusInvalidCall)
	var h uint64
	err = c.decode(res, err, func(rd *wire.Reader) { h = rd.Handle() })
	return h, err
}

// CreateTexture creates a texture owned by device and returns its handle.
func (c *Client) CreateTexture(ctx context.Context, device uint64, width, height, levels, usage, format, pool uint32) (uint64, error) {
	enc := wire.NewEncoder(types.OpDeviceCreateTexture, device)
	for _, v := range []uint32{width, height, levels, usage, format, pool} {
		enc.AppendU32(v)
	}
	res, err := c.Call(ctx, enc, types.StatusInvalidCall)
	var h uint64
	err = c.decode(res, err, func(rd *wire.Reader) { h = rd.Handle() })
	return h, err
}

// DrawPrimitive queues a draw without waiting.
func (c *Client) DrawPrimitive(ctx context.Context, device uint64, primType, start, count uint32) error {
	enc := wire.NewEncoder(types.OpDeviceDrawPrimitive, device)
	enc.AppendU32(primType)
	enc.AppendU32(start)
	enc.AppendU32(count)
	return c.Post(ctx, enc)
}

// Reset resets device with new presentation parameters.
func (c *Client) Reset(ctx context.Context, device uint64, pp wire.PresentParameters) types.Status {
	enc := wire.NewEncoder(types.OpDeviceReset, device)
	enc.AppendPresentParameters(pp)
	res, err := c.Call(ctx, enc, types.StatusInvalidCall)
	if err != nil {
		return Status(err, types.StatusInvalidCall)
	}
	return res.Status
}

// Present presents the device's back buffer and returns the remote status.
func (c *Client) Present(ctx context.Context, device, overrideWindow uint64) types.Status {
	enc := wire.NewEncoder(types.OpDevicePresent, device)
	enc.AppendHandle(overrideWindow)
	res, err := c.Call(ctx, enc, types.StatusFail)
	if err != nil {
		return Status(err, types.StatusFail)
	}
	return res.Status
}

// DestroyTexture releases a remote texture after draining queued commands.
func (c *Client) DestroyTexture(ctx context.Context, texture uint64) error {
	return c.DestroyTarget(ctx, wire.NewEncoder(types.OpTextureDestroy, texture))
}

// DestroyDevice releases a remote device after draining queued commands.
func (c *Client) DestroyDevice(ctx context.Context, device uint64) error {
	return c.DestroyTarget(ctx, wire.NewEncoder(types.OpDeviceDestroy, device))
}

// Terminate asks the server to stop serving.
func (c *Client) Terminate(ctx context.Context) error {
	return c.Post(ctx, wire.NewEncoder(types.OpTerminate, 0))
}
