package input

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/pithecene-io/tether/log"
)

// Rect is a screen rectangle.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// Raw input registration flags that take input away from other consumers.
const (
	RIDEV_NOLEGACY     uint32 = 0x00000030
	RIDEV_CAPTUREMOUSE uint32 = 0x00000200

	exclusiveRawFlags = RIDEV_NOLEGACY | RIDEV_CAPTUREMOUSE
)

// RawDevice is one raw input device registration.
type RawDevice struct {
	UsagePage uint16
	Usage     uint16
	Flags     uint32
	Target    HWND
}

// CaptureFuncs are the native exclusive-capture calls.
type CaptureFuncs struct {
	ClipCursor              func(r *Rect) error
	SetCapture              func(hwnd HWND) HWND
	ReleaseCapture          func() error
	RegisterRawInputDevices func(devs []RawDevice) error
}

type usage struct{ page, id uint16 }

// Capture tracks the game's exclusive input requests and keeps them from
// taking effect while neutralized.
type Capture struct {
	live   CaptureFuncs
	always bool
	logger *log.Logger

	mu          sync.Mutex
	neutralized bool
	clip        *Rect
	captured    HWND
	raw         map[usage]RawDevice
}

// NewCapture wraps the live capture calls. With always set the game's
// requests never take effect.
func NewCapture(live CaptureFuncs, always bool, logger *log.Logger) *Capture {
	if logger == nil {
		logger = log.NewNop()
	}
	if live.ClipCursor == nil {
		live.ClipCursor = func(*Rect) error { return nil }
	}
	if live.SetCapture == nil {
		live.SetCapture = func(HWND) HWND { return 0 }
	}
	if live.ReleaseCapture == nil {
		live.ReleaseCapture = func() error { return nil }
	}
	if live.RegisterRawInputDevices == nil {
		live.RegisterRawInputDevices = func([]RawDevice) error { return nil }
	}
	return &Capture{
		live:        live,
		always:      always,
		logger:      logger,
		neutralized: always,
		raw:         make(map[usage]RawDevice),
	}
}

// Neutralized reports whether the game's requests are currently withheld.
func (c *Capture) Neutralized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.neutralized
}

// ClipCursor replaces the cursor clip call.
func (c *Capture) ClipCursor(r *Rect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r != nil {
		cp := *r
		c.clip = &cp
	} else {
		c.clip = nil
	}
	if c.neutralized {
		return nil
	}
	return c.live.ClipCursor(r)
}

// SetCapture replaces the mouse capture call.
func (c *Capture) SetCapture(hwnd HWND) HWND {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.captured
	c.captured = hwnd
	if c.neutralized {
		return prev
	}
	return c.live.SetCapture(hwnd)
}

// ReleaseCapture replaces the mouse capture release call.
func (c *Capture) ReleaseCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = 0
	if c.neutralized {
		return nil
	}
	return c.live.ReleaseCapture()
}

// RegisterRawInputDevices replaces raw input registration. While
// neutralized the exclusive flags are stripped before registering.
func (c *Capture) RegisterRawInputDevices(devs []RawDevice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range devs {
		c.raw[usage{d.UsagePage, d.Usage}] = d
	}
	if !c.neutralized {
		return c.live.RegisterRawInputDevices(devs)
	}
	return c.live.RegisterRawInputDevices(stripExclusive(devs))
}

// Neutralize withdraws every exclusive request currently in effect.
func (c *Capture) Neutralize() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.neutralized && !c.always {
		return nil
	}
	c.neutralized = true

	var errs []error
	if c.clip != nil {
		errs = append(errs, c.live.ClipCursor(nil))
	}
	if c.captured != 0 {
		errs = append(errs, c.live.ReleaseCapture())
	}
	if devs := c.exclusiveDevices(); len(devs) > 0 {
		errs = append(errs, c.live.RegisterRawInputDevices(stripExclusive(devs)))
	}
	err := multierr.Combine(errs...)
	if err != nil {
		c.logger.Warn("capture neutralize incomplete", map[string]any{"error": err.Error()})
	}
	return err
}

// Restore reapplies the game's requests. It is a no-op when the capture is
// permanently neutralized.
func (c *Capture) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.always || !c.neutralized {
		return nil
	}
	c.neutralized = false

	var errs []error
	if c.clip != nil {
		cp := *c.clip
		errs = append(errs, c.live.ClipCursor(&cp))
	}
	if c.captured != 0 {
		c.live.SetCapture(c.captured)
	}
	if devs := c.exclusiveDevices(); len(devs) > 0 {
		errs = append(errs, c.live.RegisterRawInputDevices(devs))
	}
	err := multierr.Combine(errs...)
	if err != nil {
		c.logger.Warn("capture restore incomplete", map[string]any{"error": err.Error()})
	}
	return err
}

func (c *Capture) exclusiveDevices() []RawDevice {
	var out []RawDevice
	for _, d := range c.raw {
		if d.Flags&exclusiveRawFlags != 0 {
			out = append(out, d)
		}
	}
	return out
}

func stripExclusive(devs []RawDevice) []RawDevice {
	out := make([]RawDevice, len(devs))
	for i, d := range devs {
		d.Flags &^= exclusiveRawFlags
		out[i] = d
	}
	return out
}
