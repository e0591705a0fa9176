package input

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/uistate"
)

// CooperativeLevel flags a device was acquired with.
type CooperativeLevel uint32

// Cooperative level flags.
const (
	LevelExclusive    CooperativeLevel = 0x1
	LevelNonExclusive CooperativeLevel = 0x2
	LevelForeground   CooperativeLevel = 0x4
	LevelBackground   CooperativeLevel = 0x8
)

// Exclusive reports whether the level takes the device away from the
// window's normal message stream.
func (l CooperativeLevel) Exclusive() bool { return l&LevelExclusive != 0 }

// DeviceID identifies a captured device.
type DeviceID uint64

// ErrUnknownDevice indicates a device that was never acquired.
var ErrUnknownDevice = errors.New("unknown input device")

// PointerButtons is the number of tracked pointer buttons.
const PointerButtons = 5

// DeviceState is one polled device state. Pointer devices report relative
// motion in DX/DY/DZ and button state; keyboards report key state indexed
// by scan code.
type DeviceState struct {
	DX, DY, DZ int32
	Buttons    [PointerButtons]bool
	Keys       [keyCount]bool
}

// Message is a synthesized window message.
type Message struct {
	Msg    uint32
	WParam uintptr
	LParam uintptr
}

// Deliverer receives replayed messages. Interceptor implements it.
type Deliverer interface {
	Deliver(msg uint32, wParam, lParam uintptr) error
}

// DeviceOptions configures Devices.
type DeviceOptions struct {
	PointerPolicy  types.ForwardPolicy
	KeyboardPolicy types.ForwardPolicy
	// ScanToVK maps a keyboard scan code to a virtual key. Defaults to a
	// US layout table.
	ScanToVK func(scan uint8) uintptr
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

type device struct {
	class types.DeviceClass
	level CooperativeLevel
	prev  DeviceState
}

// Devices tracks captured input devices and replays their input as window
// messages.
type Devices struct {
	out  Deliverer
	ui   *uistate.State
	opts DeviceOptions

	mu      sync.Mutex
	devices map[DeviceID]*device
	cursor  Point
}

// NewDevices returns a device tracker replaying into out.
func NewDevices(out Deliverer, ui *uistate.State, opts DeviceOptions) *Devices {
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.ScanToVK == nil {
		opts.ScanToVK = defaultScanToVK
	}
	return &Devices{out: out, ui: ui, opts: opts, devices: make(map[DeviceID]*device)}
}

// SetCooperativeLevel records the level a device was configured with,
// registering it when first seen.
func (d *Devices) SetCooperativeLevel(id DeviceID, class types.DeviceClass, level CooperativeLevel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[id]
	if !ok {
		dev = &device{class: class}
		d.devices[id] = dev
	}
	dev.class = class
	dev.level = level
}

// Release forgets a device.
func (d *Devices) Release(id DeviceID) {
	d.mu.Lock()
	delete(d.devices, id)
	d.mu.Unlock()
}

// Exclusive reports whether any device of class is held exclusively.
func (d *Devices) Exclusive(class types.DeviceClass) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dev := range d.devices {
		if dev.class == class && dev.level.Exclusive() {
			return true
		}
	}
	return false
}

// SetCursor sets the position synthesized pointer messages start from.
func (d *Devices) SetCursor(p Point) {
	d.mu.Lock()
	d.cursor = p
	d.mu.Unlock()
}

// Poll records a new device state and replays the difference from the
// previous one when the class policy allows it. It returns the messages
// replayed.
func (d *Devices) Poll(id DeviceID, st DeviceState) ([]Message, error) {
	d.mu.Lock()
	dev, ok := d.devices[id]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, id)
	}
	var msgs []Message
	switch dev.class {
	case types.DevicePointer:
		msgs = d.pointerDiff(dev.prev, st)
	case types.DeviceKeyboard:
		msgs = d.keyboardDiff(dev.prev, st)
	}
	dev.prev = st
	dev.prev.DX, dev.prev.DY, dev.prev.DZ = 0, 0, 0
	exclusive := dev.level.Exclusive()
	policy := d.policy(dev.class)
	d.mu.Unlock()

	// Non-exclusive devices leave the native message stream intact; replay
	// would duplicate it.
	if !exclusive || !policy.Allows(d.ui != nil && d.ui.Active()) {
		return nil, nil
	}
	var errs []error
	for _, m := range msgs {
		if err := d.out.Deliver(m.Msg, m.WParam, m.LParam); err != nil {
			errs = append(errs, err)
			continue
		}
		d.opts.Metrics.IncInputReplayed()
	}
	return msgs, multierr.Combine(errs...)
}

func (d *Devices) policy(class types.DeviceClass) types.ForwardPolicy {
	if class == types.DeviceKeyboard {
		return d.opts.KeyboardPolicy
	}
	return d.opts.PointerPolicy
}

var buttonMessages = [PointerButtons][2]uint32{
	{WM_LBUTTONDOWN, WM_LBUTTONUP},
	{WM_RBUTTONDOWN, WM_RBUTTONUP},
	{WM_MBUTTONDOWN, WM_MBUTTONUP},
	{WM_XBUTTONDOWN, WM_XBUTTONUP},
	{WM_XBUTTONDOWN, WM_XBUTTONUP},
}

var buttonKeys = [PointerButtons]uintptr{MK_LBUTTON, MK_RBUTTON, MK_MBUTTON, MK_XBUTTON1, MK_XBUTTON2}

func buttonMask(st DeviceState) uintptr {
	var m uintptr
	for i, down := range st.Buttons {
		if down {
			m |= buttonKeys[i]
		}
	}
	return m
}

// pointerDiff must be called with d.mu held.
func (d *Devices) pointerDiff(prev, st DeviceState) []Message {
	var msgs []Message
	if st.DX != 0 || st.DY != 0 {
		d.cursor.X += st.DX
		d.cursor.Y += st.DY
		msgs = append(msgs, Message{WM_MOUSEMOVE, buttonMask(st), MakeLParam(d.cursor.X, d.cursor.Y)})
	}
	pos := MakeLParam(d.cursor.X, d.cursor.Y)
	for i := range st.Buttons {
		if st.Buttons[i] == prev.Buttons[i] {
			continue
		}
		msg := buttonMessages[i][1]
		if st.Buttons[i] {
			msg = buttonMessages[i][0]
		}
		w := buttonMask(st)
		if i >= 3 {
			w |= uintptr(i-2) << 16
		}
		msgs = append(msgs, Message{msg, w, pos})
	}
	if st.DZ != 0 {
		w := uintptr(uint16(int16(st.DZ)))<<16 | buttonMask(st)
		msgs = append(msgs, Message{WM_MOUSEWHEEL, w, pos})
	}
	return msgs
}

func (d *Devices) keyboardDiff(prev, st DeviceState) []Message {
	var msgs []Message
	for scan := range keyCount {
		if st.Keys[scan] == prev.Keys[scan] {
			continue
		}
		vk := d.opts.ScanToVK(uint8(scan))
		if vk == 0 {
			continue
		}
		l := uintptr(1) | uintptr(scan)<<16
		msg := WM_KEYDOWN
		if !st.Keys[scan] {
			msg = WM_KEYUP
			l |= 1<<30 | 1<<31
		}
		msgs = append(msgs, Message{msg, vk, l})
	}
	return msgs
}

// scanTable maps set-1 scan codes to virtual keys.
var scanTable = map[uint8]uintptr{
	0x01: 0x1B, // escape
	0x0E: 0x08, // backspace
	0x0F: 0x09, // tab
	0x1C: 0x0D, // enter
	0x1D: VK_CONTROL,
	0x2A: VK_SHIFT,
	0x36: VK_SHIFT,
	0x38: VK_MENU,
	0x39: 0x20, // space
	0xC8: 0x26, // up
	0xCB: 0x25, // left
	0xCD: 0x27, // right
	0xD0: 0x28, // down
}

func init() {
	for i, vk := range []uintptr{'1', '2', '3', '4', '5', '6', '7', '8', '9', '0'} {
		scanTable[uint8(0x02+i)] = vk
	}
	for i, vk := range "QWERTYUIOP" {
		scanTable[uint8(0x10+i)] = uintptr(vk)
	}
	for i, vk := range "ASDFGHJKL" {
		scanTable[uint8(0x1E+i)] = uintptr(vk)
	}
	for i, vk := range "ZXCVBNM" {
		scanTable[uint8(0x2C+i)] = uintptr(vk)
	}
	for i := range 10 {
		scanTable[uint8(0x3B+i)] = uintptr(0x70 + i) // F1..F10
	}
	scanTable[0x57] = 0x7A // F11
	scanTable[0x58] = 0x7B // F12
}

func defaultScanToVK(scan uint8) uintptr {
	return scanTable[scan]
}
