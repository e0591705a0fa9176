package uistate

import (
	"testing"
	"time"

	"github.com/pithecene-io/tether/msgchan"
)

func established(t *testing.T) (gameQ, overlayQ *msgchan.ThreadQueue, game, overlay *msgchan.Channel) {
	t.Helper()
	hub := msgchan.NewHub()
	gameQ, overlayQ = hub.NewThread(0), hub.NewThread(0)
	game, _ = msgchan.NewServer("renderer", gameQ, msgchan.Options{})
	overlay, _ = msgchan.NewClient("renderer", overlayQ, gameQ.ThreadID(), msgchan.Options{})
	if err := overlay.Handshake(); err != nil {
		t.Fatal(err)
	}
	pump(t, gameQ, game)
	pump(t, overlayQ, overlay)
	return gameQ, overlayQ, game, overlay
}

func pump(t *testing.T, q *msgchan.ThreadQueue, c *msgchan.Channel) {
	t.Helper()
	select {
	case m := <-q.Messages():
		c.Dispatch(m)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}

func TestState_ToggleThroughChannel(t *testing.T) {
	gameQ, _, game, overlay := established(t)
	s := New()
	if _, err := s.Bind(game); err != nil {
		t.Fatal(err)
	}

	var transitions []bool
	s.Subscribe(func(active bool) { transitions = append(transitions, active) })

	// Sending on the overlay side does not change the game's copy until
	// the message is dispatched on the owning thread.
	if err := Toggle(overlay, true); err != nil {
		t.Fatal(err)
	}
	if s.Active() {
		t.Fatal("state changed before dispatch")
	}
	pump(t, gameQ, game)
	if !s.Active() {
		t.Fatal("state not active after toggle")
	}

	// Repeated toggles to the same value are not transitions.
	_ = Toggle(overlay, true)
	pump(t, gameQ, game)
	_ = Toggle(overlay, false)
	pump(t, gameQ, game)

	if s.Active() {
		t.Error("state still active")
	}
	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Errorf("transitions = %v, want [true false]", transitions)
	}
}
