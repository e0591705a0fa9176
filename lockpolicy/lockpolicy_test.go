package lockpolicy

import (
	"sync"
	"testing"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		policy        Policy
		multithreaded bool
		want          Policy
	}{
		{PolicyAuto, false, PolicyUnsynchronized},
		{PolicyAuto, true, PolicyGlobal},
		{PolicyGlobal, false, PolicyGlobal},
		{PolicyUnsynchronized, true, PolicyUnsynchronized},
	}
	for _, tt := range tests {
		got := Select(tt.policy, tt.multithreaded).Policy()
		if got != tt.want {
			t.Errorf("Select(%s, %v) = %s, want %s", tt.policy, tt.multithreaded, got, tt.want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := map[string]Policy{
		"":               PolicyAuto,
		"auto":           PolicyAuto,
		"NONE":           PolicyUnsynchronized,
		"unsynchronized": PolicyUnsynchronized,
		"global":         PolicyGlobal,
		"global_lock":    PolicyGlobal,
	}
	for in, want := range tests {
		got, err := ParsePolicy(in)
		if err != nil {
			t.Errorf("ParsePolicy(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePolicy(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParsePolicy("fine_grained"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestGlobalLock_Serializes(t *testing.T) {
	l := Select(PolicyGlobal, false)
	var wg sync.WaitGroup
	counter := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 16000 {
		t.Errorf("counter = %d, want 16000", counter)
	}
}

func TestGlobalLock_NotReentrant(t *testing.T) {
	g := &GlobalLock{}
	g.Lock()
	defer g.Unlock()
	if g.mu.TryLock() {
		g.mu.Unlock()
		t.Fatal("lock re-acquired by its holder")
	}
}
