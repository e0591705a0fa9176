package input

// PM_REMOVE is the PeekMessage flag that removes the message.
const PM_REMOVE uint32 = 0x0001

// MSG is a queued thread message.
type MSG struct {
	HWND    HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      Point
}

// PumpFuncs are the native message retrieval calls.
type PumpFuncs struct {
	// GetMessage blocks for the next message. It returns 0 on WM_QUIT and
	// -1 on error.
	GetMessage  func(m *MSG, hwnd HWND, filterMin, filterMax uint32) int32
	PeekMessage func(m *MSG, hwnd HWND, filterMin, filterMax, remove uint32) bool
}

// Filter decides whether a pumped message is withheld from the game.
// Interceptor implements it.
type Filter interface {
	Window() HWND
	Filter(msg uint32, wParam, lParam uintptr) bool
}

// Pump runs messages for the intercepted window through gating before the
// game's own loop sees them.
type Pump struct {
	live PumpFuncs
	f    Filter
}

// NewPump wraps the live pump calls.
func NewPump(live PumpFuncs, f Filter) *Pump {
	return &Pump{live: live, f: f}
}

func (p *Pump) withheld(m *MSG) bool {
	hwnd := p.f.Window()
	return hwnd != 0 && m.HWND == hwnd && p.f.Filter(m.Message, m.WParam, m.LParam)
}

// GetMessage replaces the blocking message retrieval.
func (p *Pump) GetMessage(m *MSG, hwnd HWND, filterMin, filterMax uint32) int32 {
	for {
		r := p.live.GetMessage(m, hwnd, filterMin, filterMax)
		if r <= 0 || !p.withheld(m) {
			return r
		}
	}
}

// PeekMessage replaces the polling message retrieval. A withheld message
// is removed from the queue even when the caller only peeked.
func (p *Pump) PeekMessage(m *MSG, hwnd HWND, filterMin, filterMax, remove uint32) bool {
	for {
		if !p.live.PeekMessage(m, hwnd, filterMin, filterMax, remove) {
			return false
		}
		if !p.withheld(m) {
			return true
		}
		if remove&PM_REMOVE == 0 {
			var drop MSG
			p.live.PeekMessage(&drop, hwnd, filterMin, filterMax, remove|PM_REMOVE)
		}
	}
}
