package hook

import (
	"errors"
	"testing"

	"go.uber.org/multierr"
)

func TestTable_AttachDetach(t *testing.T) {
	cursor := NewSlot("GetCursorPos", func() (int32, int32) { return 10, 20 })
	keys := NewSlot("GetKeyState", func(vk int32) int16 { return 0 })

	tbl := NewTable(SlotPatcher{}, nil)
	tbl.Add("GetCursorPos", cursor, func() (int32, int32) { return 0, 0 })
	tbl.Add("GetKeyState", keys, func(int32) int16 { return -1 })

	if err := tbl.AttachAll(); err != nil {
		t.Fatalf("AttachAll: %v", err)
	}
	if x, y := cursor.Get()(); x != 0 || y != 0 {
		t.Errorf("cursor not hooked: %d,%d", x, y)
	}
	if keys.Get()(0x10) != -1 {
		t.Error("key state not hooked")
	}
	for _, e := range tbl.Entries() {
		if !e.Attached() || e.Original == nil {
			t.Errorf("entry %s: attached=%v original=%v", e.Name, e.Attached(), e.Original)
		}
	}

	if err := tbl.DetachAll(); err != nil {
		t.Fatalf("DetachAll: %v", err)
	}
	if x, y := cursor.Get()(); x != 10 || y != 20 {
		t.Errorf("cursor not restored: %d,%d", x, y)
	}
}

func TestTable_FailuresReportedIndividually(t *testing.T) {
	good := NewSlot("good", func() {})
	typed := NewSlot("typed", func() int { return 1 })

	tbl := NewTable(SlotPatcher{}, nil)
	tbl.Add("not a slot", 42, func() {})
	tbl.Add("good", good, func() {})
	tbl.Add("wrong type", typed, func() string { return "" })

	err := tbl.AttachAll()
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("aggregate holds %d errors, want 2", n)
	}
	if !errors.Is(err, ErrUnsupportedTarget) {
		t.Errorf("aggregate = %v", err)
	}

	// The batch continued past the first failure.
	if !tbl.Entries()[1].Attached() {
		t.Error("good entry not attached after earlier failure")
	}
	if got := len(tbl.Failed()); got != 2 {
		t.Errorf("Failed = %d entries, want 2", got)
	}
	if typed.Get()() != 1 {
		t.Error("failed entry modified its target")
	}

	// Detach only touches what was attached.
	if err := tbl.DetachAll(); err != nil {
		t.Errorf("DetachAll: %v", err)
	}
}

func TestTable_AttachIdempotent(t *testing.T) {
	calls := 0
	s := NewSlot("s", func() {})
	tbl := NewTable(SlotPatcher{}, nil)
	tbl.Add("s", s, func() { calls++ })

	_ = tbl.AttachAll()
	_ = tbl.AttachAll()
	s.Get()()
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
	_ = tbl.DetachAll()
	s.Get()()
	if calls != 1 {
		t.Error("replacement still installed after detach")
	}
}
