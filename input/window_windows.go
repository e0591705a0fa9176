//go:build windows

package input

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	user32                = windows.NewLazySystemDLL("user32.dll")
	procSetWindowLongPtrW = user32.NewProc("SetWindowLongPtrW")
	procCallWindowProcW   = user32.NewProc("CallWindowProcW")
)

const gwlpWndProc = ^uintptr(3) // GWLP_WNDPROC (-4)

// NativeWindow subclasses real windows by replacing GWLP_WNDPROC.
type NativeWindow struct{}

// Subclass implements Window.
func (NativeWindow) Subclass(hwnd HWND, proc WndProc) (WndProc, func() error, error) {
	cb := windows.NewCallback(func(h, msg, w, l uintptr) uintptr {
		return proc(HWND(h), uint32(msg), w, l)
	})
	prev, _, err := procSetWindowLongPtrW.Call(uintptr(hwnd), gwlpWndProc, cb)
	if prev == 0 {
		return nil, nil, fmt.Errorf("SetWindowLongPtrW: %w", err)
	}
	original := func(h HWND, msg uint32, w, l uintptr) uintptr {
		r, _, _ := procCallWindowProcW.Call(prev, uintptr(h), uintptr(msg), w, l)
		return r
	}
	restore := func() error {
		if r, _, err := procSetWindowLongPtrW.Call(uintptr(hwnd), gwlpWndProc, prev); r == 0 {
			return fmt.Errorf("SetWindowLongPtrW: %w", err)
		}
		return nil
	}
	return original, restore, nil
}
