package types

import "fmt"

// Opcode identifies one logical remote operation.
// Values are part of the wire format and must never be renumbered.
type Opcode uint16

// Global (adapter-level) calls. TargetID is 0.
const (
	OpNone Opcode = iota
	OpPing
	OpTerminate
	OpGetAdapterCount
	OpGetAdapterIdentifier
	OpGetAdapterModeCount
	OpEnumAdapterModes
	OpGetAdapterDisplayMode
	OpCheckDeviceType
	OpCheckDeviceFormat
	OpCheckDeviceMultiSampleType
	OpCheckDepthStencilMatch
	OpGetDeviceCaps
	OpCreateDevice
)

// Device and resource calls. TargetID names the remote object.
const (
	OpDeviceDestroy Opcode = iota + 0x100
	OpDeviceReset
	OpDevicePresent
	OpDeviceTestCooperativeLevel
	OpDeviceBeginScene
	OpDeviceEndScene
	OpDeviceClear
	OpDeviceSetRenderState
	OpDeviceDrawPrimitive
	OpDeviceCreateTexture
	OpTextureDestroy
)

type opcodeInfo struct {
	name      string
	reply     bool
	cacheable bool
	destroy   bool
}

var opcodes = map[Opcode]opcodeInfo{
	OpPing:                       {name: "Ping", reply: true},
	OpTerminate:                  {name: "Terminate"},
	OpGetAdapterCount:            {name: "GetAdapterCount", reply: true, cacheable: true},
	OpGetAdapterIdentifier:       {name: "GetAdapterIdentifier", reply: true, cacheable: true},
	OpGetAdapterModeCount:        {name: "GetAdapterModeCount", reply: true, cacheable: true},
	OpEnumAdapterModes:           {name: "EnumAdapterModes", reply: true, cacheable: true},
	OpGetAdapterDisplayMode:      {name: "GetAdapterDisplayMode", reply: true},
	OpCheckDeviceType:            {name: "CheckDeviceType", reply: true, cacheable: true},
	OpCheckDeviceFormat:          {name: "CheckDeviceFormat", reply: true, cacheable: true},
	OpCheckDeviceMultiSampleType: {name: "CheckDeviceMultiSampleType", reply: true, cacheable: true},
	OpCheckDepthStencilMatch:     {name: "CheckDepthStencilMatch", reply: true, cacheable: true},
	OpGetDeviceCaps:              {name: "GetDeviceCaps", reply: true, cacheable: true},
	OpCreateDevice:               {name: "CreateDevice", reply: true},

	OpDeviceDestroy:              {name: "Device.Destroy", destroy: true},
	OpDeviceReset:                {name: "Device.Reset", reply: true},
	OpDevicePresent:              {name: "Device.Present", reply: true},
	OpDeviceTestCooperativeLevel: {name: "Device.TestCooperativeLevel", reply: true},
	OpDeviceBeginScene:           {name: "Device.BeginScene"},
	OpDeviceEndScene:             {name: "Device.EndScene"},
	OpDeviceClear:                {name: "Device.Clear"},
	OpDeviceSetRenderState:       {name: "Device.SetRenderState"},
	OpDeviceDrawPrimitive:        {name: "Device.DrawPrimitive"},
	OpDeviceCreateTexture:        {name: "Device.CreateTexture", reply: true},
	OpTextureDestroy:             {name: "Texture.Destroy", destroy: true},
}

// Known reports whether op is part of the supported call set.
func (op Opcode) Known() bool {
	_, ok := opcodes[op]
	return ok
}

// ExpectsReply reports whether the server produces exactly one Response for op.
func (op Opcode) ExpectsReply() bool {
	return opcodes[op].reply
}

// Cacheable reports whether op is idempotent and its result immutable for
// the lifetime of the server process.
func (op Opcode) Cacheable() bool {
	return opcodes[op].cacheable
}

// Destroys reports whether op invalidates its target on the server.
// Such commands must only be sent after the command queue is drained.
func (op Opcode) Destroys() bool {
	return opcodes[op].destroy
}

func (op Opcode) String() string {
	if info, ok := opcodes[op]; ok {
		return info.name
	}
	return fmt.Sprintf("Opcode(%#04x)", uint16(op))
}

// Opcodes returns every known opcode in ascending order.
func Opcodes() []Opcode {
	out := make([]Opcode, 0, len(opcodes))
	for op := Opcode(0); op < OpDeviceDestroy; op++ {
		if op.Known() {
			out = append(out, op)
		}
	}
	for op := OpDeviceDestroy; op <= OpTextureDestroy; op++ {
		if op.Known() {
			out = append(out, op)
		}
	}
	return out
}
