package input

import (
	"go.uber.org/multierr"

	"github.com/pithecene-io/tether/hook"
	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/msgchan"
	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/uistate"
)

// Hooks are the interception points of the native input API. Each slot
// holds the function the game calls.
type Hooks struct {
	CursorPos     *hook.Slot[func() (Point, bool)]
	KeyState      *hook.Slot[func(vk int32) int16]
	AsyncKeyState *hook.Slot[func(vk int32) int16]
	RawInput      *hook.Slot[func(buf []byte) int]

	ClipCursor              *hook.Slot[func(r *Rect) error]
	SetCapture              *hook.Slot[func(hwnd HWND) HWND]
	ReleaseCapture          *hook.Slot[func() error]
	RegisterRawInputDevices *hook.Slot[func(devs []RawDevice) error]

	GetMessage  *hook.Slot[func(m *MSG, hwnd HWND, filterMin, filterMax uint32) int32]
	PeekMessage *hook.Slot[func(m *MSG, hwnd HWND, filterMin, filterMax, remove uint32) bool]
}

// LayerConfig selects interception behavior.
type LayerConfig struct {
	InterceptMessagePump  bool
	DisableExclusiveInput bool
	PointerPolicy         types.ForwardPolicy
	KeyboardPolicy        types.ForwardPolicy
}

// LayerDeps are the collaborators of a Layer.
type LayerDeps struct {
	Window   Window
	Patcher  hook.Patcher
	Channel  *msgchan.Channel
	UI       *uistate.State
	Patience PatienceSetter
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// Layer wires window interception, query freezing, capture neutralization,
// device replay and pump filtering to one UI-active flag.
type Layer struct {
	Interceptor *Interceptor
	Queries     *FrozenQueries
	Capture     *Capture
	Devices     *Devices
	Pump        *Pump

	hooks   *Hooks
	cfg     LayerConfig
	table   *hook.Table
	ui      *uistate.State
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewLayer builds a layer over hooks. The live functions are taken from
// the slots as they are now, before anything is attached.
func NewLayer(hooks *Hooks, cfg LayerConfig, deps LayerDeps) *Layer {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	if deps.UI == nil {
		deps.UI = uistate.New()
	}
	if deps.Patcher == nil {
		deps.Patcher = hook.SlotPatcher{}
	}
	ic := NewInterceptor(deps.Window, Options{
		Channel:  deps.Channel,
		UI:       deps.UI,
		Patience: deps.Patience,
		Logger:   logger.Named("wndproc"),
		Metrics:  deps.Metrics,
	})

	var qf QueryFuncs
	var cf CaptureFuncs
	var pf PumpFuncs
	if hooks != nil {
		qf = QueryFuncs{
			CursorPos:     getOrNil(hooks.CursorPos),
			KeyState:      getOrNil(hooks.KeyState),
			AsyncKeyState: getOrNil(hooks.AsyncKeyState),
			RawInput:      getOrNil(hooks.RawInput),
		}
		cf = CaptureFuncs{
			ClipCursor:              getOrNil(hooks.ClipCursor),
			SetCapture:              getOrNil(hooks.SetCapture),
			ReleaseCapture:          getOrNil(hooks.ReleaseCapture),
			RegisterRawInputDevices: getOrNil(hooks.RegisterRawInputDevices),
		}
		pf = PumpFuncs{
			GetMessage:  getOrNil(hooks.GetMessage),
			PeekMessage: getOrNil(hooks.PeekMessage),
		}
	}

	l := &Layer{
		Interceptor: ic,
		Queries:     NewFrozenQueries(qf),
		Capture:     NewCapture(cf, cfg.DisableExclusiveInput, logger.Named("capture")),
		Devices: NewDevices(ic, deps.UI, DeviceOptions{
			PointerPolicy:  cfg.PointerPolicy,
			KeyboardPolicy: cfg.KeyboardPolicy,
			Logger:         logger.Named("devices"),
			Metrics:        deps.Metrics,
		}),
		hooks:  hooks,
		cfg:    cfg,
		table:  hook.NewTable(deps.Patcher, logger.Named("hooks")),
		ui:      deps.UI,
		logger:  logger,
		metrics: deps.Metrics,
	}
	if pf.GetMessage != nil && pf.PeekMessage != nil {
		l.Pump = NewPump(pf, ic)
	}

	deps.UI.Subscribe(l.onUIActive)
	return l
}

func getOrNil[F any](s *hook.Slot[F]) F {
	var zero F
	if s == nil {
		return zero
	}
	return s.Get()
}

func (l *Layer) onUIActive(active bool) {
	var err error
	if active {
		l.Queries.Freeze()
		err = l.Capture.Neutralize()
	} else {
		l.Queries.Thaw()
		err = l.Capture.Restore()
	}
	fields := map[string]any{"active": active}
	if err != nil {
		// The transition still applies; the game keeps whatever capture
		// state the failed calls left behind.
		l.metrics.IncCaptureError()
		fields["capture_error"] = err.Error()
	}
	l.logger.Info("overlay input ownership changed", fields)
}

// Install attaches every hook the configuration calls for and intercepts
// hwnd when non-zero. Hook failures are aggregated; the layer keeps
// running with the hooks that attached.
func (l *Layer) Install(hwnd HWND) error {
	l.addHooks()
	err := l.table.AttachAll()
	if hwnd != 0 {
		err = multierr.Append(err, l.Interceptor.Set(hwnd))
	}
	if l.cfg.DisableExclusiveInput {
		err = multierr.Append(err, l.Capture.Neutralize())
	}
	return err
}

// Uninstall detaches all hooks and releases the window.
func (l *Layer) Uninstall() error {
	return multierr.Append(l.Interceptor.Unset(), l.table.DetachAll())
}

// Table returns the hook table.
func (l *Layer) Table() *hook.Table { return l.table }

func (l *Layer) addHooks() {
	if len(l.table.Entries()) > 0 || l.hooks == nil {
		return
	}
	h, t := l.hooks, l.table
	addSlot(t, h.CursorPos, l.Queries.CursorPos)
	addSlot(t, h.KeyState, l.Queries.KeyState)
	addSlot(t, h.AsyncKeyState, l.Queries.AsyncKeyState)
	addSlot(t, h.RawInput, l.Queries.RawInput)
	addSlot(t, h.ClipCursor, l.Capture.ClipCursor)
	addSlot(t, h.SetCapture, l.Capture.SetCapture)
	addSlot(t, h.ReleaseCapture, l.Capture.ReleaseCapture)
	addSlot(t, h.RegisterRawInputDevices, l.Capture.RegisterRawInputDevices)
	if l.cfg.InterceptMessagePump && l.Pump != nil {
		addSlot(t, h.GetMessage, l.Pump.GetMessage)
		addSlot(t, h.PeekMessage, l.Pump.PeekMessage)
	}
}

func addSlot[F any](t *hook.Table, s *hook.Slot[F], replacement F) {
	if s != nil {
		t.Add(s.Name(), s, replacement)
	}
}
