package input

import (
	"errors"
	"sync"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/msgchan"
	"github.com/pithecene-io/tether/uistate"
)

// ErrNotSet indicates an operation that needs an intercepted window.
var ErrNotSet = errors.New("no window intercepted")

// Window installs window procedures on native windows.
type Window interface {
	// Subclass installs proc on hwnd. It returns the previous procedure and
	// a function that reinstalls it.
	Subclass(hwnd HWND, proc WndProc) (original WndProc, restore func() error, err error)
}

// PatienceSetter is told when the game window loses or regains focus.
// bridge.Client implements it.
type PatienceSetter interface {
	SetPatience(on bool)
}

// Options configures an Interceptor.
type Options struct {
	// Channel forwards window messages to the server. Optional.
	Channel *msgchan.Channel
	// UI gates input while an overlay is active. Optional.
	UI *uistate.State
	// Patience receives focus transitions. Optional.
	Patience PatienceSetter
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// WindowState is the layer's bookkeeping of the intercepted window.
type WindowState struct {
	Focused    bool
	Minimized  bool
	Maximized  bool
	Width      int32
	Height     int32
	Fullscreen bool
}

// Interceptor owns the game window's procedure.
type Interceptor struct {
	win  Window
	opts Options

	focusID msgchan.MessageID
	hasID   bool

	mu       sync.Mutex
	hwnd     HWND
	original WndProc
	restore  func() error
	state    WindowState
	screen   struct{ w, h int32 }
}

// NewInterceptor returns an Interceptor installing procedures through win.
func NewInterceptor(win Window, opts Options) *Interceptor {
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	ic := &Interceptor{win: win, opts: opts}
	if opts.Channel != nil {
		if id, err := opts.Channel.Register(msgchan.NameFocusChanged); err == nil {
			ic.focusID, ic.hasID = id, true
		} else {
			opts.Logger.Warn("focus message registration failed", map[string]any{"error": err.Error()})
		}
	}
	return ic
}

// SetScreenSize records the display resolution used to detect a
// full-screen window.
func (ic *Interceptor) SetScreenSize(w, h int32) {
	ic.mu.Lock()
	ic.screen.w, ic.screen.h = w, h
	ic.mu.Unlock()
}

// Set intercepts hwnd. Setting a second window without Unset is a caller
// bug: it is logged and the previous window is released first.
func (ic *Interceptor) Set(hwnd HWND) error {
	ic.mu.Lock()
	prev := ic.hwnd
	ic.mu.Unlock()
	if prev != 0 {
		ic.opts.Logger.Error("window procedure already set", map[string]any{
			"previous": uint64(prev),
			"window":   uint64(hwnd),
		})
		if err := ic.Unset(); err != nil {
			return err
		}
	}

	original, restore, err := ic.win.Subclass(hwnd, ic.Proc)
	if err != nil {
		return err
	}
	ic.mu.Lock()
	ic.hwnd = hwnd
	ic.original = original
	ic.restore = restore
	ic.state = WindowState{Focused: true}
	ic.mu.Unlock()
	ic.opts.Logger.Debug("window procedure set", map[string]any{"window": uint64(hwnd)})
	return nil
}

// Unset restores the original procedure. Unset without Set is a no-op.
func (ic *Interceptor) Unset() error {
	ic.mu.Lock()
	hwnd, restore := ic.hwnd, ic.restore
	ic.hwnd, ic.original, ic.restore = 0, nil, nil
	ic.mu.Unlock()
	if hwnd == 0 {
		return nil
	}
	ic.opts.Logger.Debug("window procedure unset", map[string]any{"window": uint64(hwnd)})
	if restore == nil {
		return nil
	}
	return restore()
}

// Window returns the intercepted window, or 0.
func (ic *Interceptor) Window() HWND {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.hwnd
}

// State returns the window bookkeeping.
func (ic *Interceptor) State() WindowState {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.state
}

// Proc is the installed window procedure.
func (ic *Interceptor) Proc(hwnd HWND, msg uint32, wParam, lParam uintptr) uintptr {
	ic.lifecycle(msg, wParam, lParam)
	ic.forward(msg, wParam, lParam)

	if ic.suppress(msg, wParam) {
		return 0
	}

	ic.mu.Lock()
	original := ic.original
	ic.mu.Unlock()
	var ret uintptr
	if original != nil {
		ret = original(hwnd, msg, wParam, lParam)
	}

	if msg == WM_DESTROY {
		if err := ic.Unset(); err != nil {
			ic.opts.Logger.Error("window procedure restore failed", map[string]any{"error": err.Error()})
		}
	}
	return ret
}

// Deliver runs a synthesized message through the procedure of the
// intercepted window.
func (ic *Interceptor) Deliver(msg uint32, wParam, lParam uintptr) error {
	hwnd := ic.Window()
	if hwnd == 0 {
		return ErrNotSet
	}
	ic.Proc(hwnd, msg, wParam, lParam)
	return nil
}

// Filter forwards and gates a message taken from the pump before dispatch.
// It reports whether the message must be withheld from the game.
func (ic *Interceptor) Filter(msg uint32, wParam, lParam uintptr) bool {
	if !ic.Gated(msg, wParam) {
		return false
	}
	ic.forward(msg, wParam, lParam)
	ic.opts.Metrics.IncInputSuppressed()
	return true
}

// Gated reports whether msg is currently withheld from the game.
func (ic *Interceptor) Gated(msg uint32, wParam uintptr) bool {
	if ic.opts.UI == nil || !ic.opts.UI.Active() {
		return false
	}
	return IsInput(msg) && !allowedWhileActive(msg, wParam)
}

func (ic *Interceptor) suppress(msg uint32, wParam uintptr) bool {
	if !ic.Gated(msg, wParam) {
		return false
	}
	ic.opts.Metrics.IncInputSuppressed()
	return true
}

func (ic *Interceptor) lifecycle(msg uint32, wParam, lParam uintptr) {
	switch msg {
	case WM_ACTIVATEAPP:
		focused := wParam != 0
		ic.mu.Lock()
		changed := ic.state.Focused != focused
		ic.state.Focused = focused
		ic.mu.Unlock()
		if !changed {
			return
		}
		if ic.opts.Patience != nil {
			ic.opts.Patience.SetPatience(!focused)
		}
		if ic.hasID {
			var a uint64
			if focused {
				a = 1
			}
			ic.send(ic.focusID, a, 0)
		}
		ic.opts.Logger.Info("focus changed", map[string]any{"focused": focused})

	case WM_SIZE:
		w, h := LoHi(lParam)
		ic.mu.Lock()
		ic.state.Minimized = wParam == SIZE_MINIMIZED
		ic.state.Maximized = wParam == SIZE_MAXIMIZED
		if !ic.state.Minimized {
			ic.state.Width, ic.state.Height = w, h
		}
		ic.state.Fullscreen = !ic.state.Minimized && ic.screen.w > 0 &&
			ic.state.Width == ic.screen.w && ic.state.Height == ic.screen.h
		ic.mu.Unlock()
	}
}

// forward relays a window message to the server. Message ids on the
// Windows side are the raw message numbers.
func (ic *Interceptor) forward(msg uint32, wParam, lParam uintptr) {
	ic.send(msgchan.MessageID(msg), uint64(wParam), uint64(lParam))
}

func (ic *Interceptor) send(id msgchan.MessageID, a, b uint64) {
	ch := ic.opts.Channel
	if ch == nil || ch.State() != msgchan.Established {
		return
	}
	if err := ch.Send(id, a, b); err != nil {
		ic.opts.Logger.Debug("window message not forwarded", map[string]any{
			"message": MessageName(uint32(id)),
			"error":   err.Error(),
		})
	}
}
