package msgchan

import (
	"errors"
	"testing"
)

func TestHub_PostErrors(t *testing.T) {
	hub := NewHub()
	a, b := hub.NewThread(1), hub.NewThread(1)

	if err := a.Post(b.ThreadID(), 1, 0, 0); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := a.Post(b.ThreadID(), 1, 0, 0); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Post to full queue = %v, want ErrQueueFull", err)
	}
	m := <-b.Messages()
	if m.From != a.ThreadID() || m.ID != 1 {
		t.Errorf("message = %v", m)
	}

	_ = b.Close()
	if err := a.Post(b.ThreadID(), 1, 0, 0); !errors.Is(err, ErrNoThread) {
		t.Errorf("Post to closed thread = %v, want ErrNoThread", err)
	}
}

func TestHub_RegisterStable(t *testing.T) {
	hub := NewHub()
	q := hub.NewThread(0)
	x, _ := q.Register("x")
	y, _ := q.Register("y")
	again, _ := hub.NewThread(0).Register("x")
	if x == y {
		t.Error("distinct names share an id")
	}
	if x != again {
		t.Errorf("Register(x) = %#x then %#x", x, again)
	}
}

func TestNameTable(t *testing.T) {
	tbl := newNameTable()
	id, err := tbl.register(NameHandshake)
	if err != nil {
		t.Fatal(err)
	}
	if id < FirstRegistered || id > LastRegistered {
		t.Errorf("id %#x out of registered range", id)
	}
	if id != hashName(NameHandshake) {
		t.Error("id not derived from name")
	}

	tbl.byID[hashName("planted")] = "other"
	if _, err := tbl.register("planted"); !errors.Is(err, ErrNameCollision) {
		t.Errorf("register = %v, want ErrNameCollision", err)
	}
}
