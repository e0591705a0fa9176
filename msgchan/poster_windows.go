//go:build windows

package msgchan

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
	procRegisterWindowMsgW = user32.NewProc("RegisterWindowMessageW")
)

// ThreadPoster posts to native thread message queues. The receive side is
// the owning thread's message pump, which hands messages to
// Channel.OnMessage from the window procedure.
type ThreadPoster struct {
	id ThreadID
}

// NewThreadPoster returns a poster for the calling OS thread. The caller
// must be locked to its OS thread.
func NewThreadPoster() *ThreadPoster {
	return &ThreadPoster{id: ThreadID(windows.GetCurrentThreadId())}
}

// ThreadID returns the native thread id captured at construction.
func (p *ThreadPoster) ThreadID() ThreadID { return p.id }

// Post calls PostThreadMessageW.
func (p *ThreadPoster) Post(to ThreadID, msg MessageID, a, b uint64) error {
	r, _, err := procPostThreadMessageW.Call(uintptr(to), uintptr(msg), uintptr(a), uintptr(b))
	if r == 0 {
		if err == windows.ERROR_NOT_ENOUGH_QUOTA {
			return fmt.Errorf("%w: thread %d", ErrQueueFull, to)
		}
		return fmt.Errorf("%w %d: %v", ErrNoThread, to, err)
	}
	return nil
}

// Register calls RegisterWindowMessageW.
func (p *ThreadPoster) Register(name string) (MessageID, error) {
	s, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}
	r, _, err := procRegisterWindowMsgW.Call(uintptr(unsafe.Pointer(s)))
	if r == 0 {
		return 0, fmt.Errorf("RegisterWindowMessage(%q): %v", name, err)
	}
	return MessageID(r), nil
}
