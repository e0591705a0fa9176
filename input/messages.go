// Package input intercepts the game window's procedure and native input
// queries, forwards window events over the message channel and gates
// input between the game and an active overlay.
package input

import "fmt"

// HWND is a native window handle.
type HWND uintptr

// WndProc is a window procedure.
type WndProc func(hwnd HWND, msg uint32, wParam, lParam uintptr) uintptr

// Window messages handled by the layer.
const (
	WM_DESTROY     uint32 = 0x0002
	WM_SIZE        uint32 = 0x0005
	WM_ACTIVATE    uint32 = 0x0006
	WM_SETFOCUS    uint32 = 0x0007
	WM_KILLFOCUS   uint32 = 0x0008
	WM_ACTIVATEAPP uint32 = 0x001C
	WM_INPUT       uint32 = 0x00FF

	WM_KEYFIRST   uint32 = 0x0100
	WM_KEYDOWN    uint32 = 0x0100
	WM_KEYUP      uint32 = 0x0101
	WM_CHAR       uint32 = 0x0102
	WM_SYSKEYDOWN uint32 = 0x0104
	WM_SYSKEYUP   uint32 = 0x0105
	WM_KEYLAST    uint32 = 0x0109

	WM_MOUSEFIRST  uint32 = 0x0200
	WM_MOUSEMOVE   uint32 = 0x0200
	WM_LBUTTONDOWN uint32 = 0x0201
	WM_LBUTTONUP   uint32 = 0x0202
	WM_RBUTTONDOWN uint32 = 0x0204
	WM_RBUTTONUP   uint32 = 0x0205
	WM_MBUTTONDOWN uint32 = 0x0207
	WM_MBUTTONUP   uint32 = 0x0208
	WM_MOUSEWHEEL  uint32 = 0x020A
	WM_XBUTTONDOWN uint32 = 0x020B
	WM_XBUTTONUP   uint32 = 0x020C
	WM_MOUSELAST   uint32 = 0x020E
)

// Virtual keys on the gating allow-list.
const (
	VK_SHIFT   uintptr = 0x10
	VK_CONTROL uintptr = 0x11
	VK_MENU    uintptr = 0x12
)

// WM_SIZE wParam values.
const (
	SIZE_RESTORED  uintptr = 0
	SIZE_MINIMIZED uintptr = 1
	SIZE_MAXIMIZED uintptr = 2
)

// Mouse key-state flags carried in mouse message wParam.
const (
	MK_LBUTTON  uintptr = 0x0001
	MK_RBUTTON  uintptr = 0x0002
	MK_MBUTTON  uintptr = 0x0010
	MK_XBUTTON1 uintptr = 0x0020
	MK_XBUTTON2 uintptr = 0x0040
)

// IsKeyboard reports whether msg is a keyboard message.
func IsKeyboard(msg uint32) bool {
	return msg >= WM_KEYFIRST && msg <= WM_KEYLAST
}

// IsPointer reports whether msg is a mouse message.
func IsPointer(msg uint32) bool {
	return msg >= WM_MOUSEFIRST && msg <= WM_MOUSELAST
}

// IsInput reports whether msg is subject to overlay gating.
func IsInput(msg uint32) bool {
	return IsKeyboard(msg) || IsPointer(msg) || msg == WM_INPUT || msg == WM_SETFOCUS || msg == WM_KILLFOCUS
}

// allowedWhileActive lists the input messages delivered to the game even
// while an overlay owns input, so the game never sees a modifier stuck
// down or misses losing focus.
func allowedWhileActive(msg uint32, wParam uintptr) bool {
	switch msg {
	case WM_KEYUP, WM_SYSKEYUP:
		return wParam == VK_MENU || wParam == VK_SHIFT || wParam == VK_CONTROL
	case WM_KILLFOCUS:
		return true
	}
	return false
}

// MakeLParam packs two 16-bit values as LOWORD and HIWORD.
func MakeLParam(lo, hi int32) uintptr {
	return uintptr(uint32(uint16(lo)) | uint32(uint16(hi))<<16)
}

// LoHi unpacks LOWORD and HIWORD of v as signed values.
func LoHi(v uintptr) (lo, hi int32) {
	return int32(int16(uint16(v))), int32(int16(uint16(v >> 16)))
}

// MessageName returns a readable name for logging.
func MessageName(msg uint32) string {
	switch msg {
	case WM_DESTROY:
		return "WM_DESTROY"
	case WM_SIZE:
		return "WM_SIZE"
	case WM_ACTIVATE:
		return "WM_ACTIVATE"
	case WM_SETFOCUS:
		return "WM_SETFOCUS"
	case WM_KILLFOCUS:
		return "WM_KILLFOCUS"
	case WM_ACTIVATEAPP:
		return "WM_ACTIVATEAPP"
	case WM_INPUT:
		return "WM_INPUT"
	case WM_KEYDOWN:
		return "WM_KEYDOWN"
	case WM_KEYUP:
		return "WM_KEYUP"
	case WM_SYSKEYDOWN:
		return "WM_SYSKEYDOWN"
	case WM_SYSKEYUP:
		return "WM_SYSKEYUP"
	case WM_MOUSEMOVE:
		return "WM_MOUSEMOVE"
	}
	return fmt.Sprintf("WM(%#04x)", msg)
}
