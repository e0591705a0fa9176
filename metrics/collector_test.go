package metrics

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("global", "shm", "01SESSION", "client")

	c.IncCommandSent()
	c.IncCommandSent()
	c.IncCommandSent()
	c.IncResponseReceived()
	c.IncResponseReceived()
	c.IncTimeout()
	c.IncStaleDiscarded()
	c.IncRemoteFailure()
	c.IncTransportError()
	c.IncProtocolError()
	c.IncProtocolError()
	c.IncChannelSent()
	c.IncChannelDropped()
	c.IncInputSuppressed()
	c.IncInputSuppressed()
	c.IncInputReplayed()
	c.IncChannelReceived()
	c.IncCaptureError()

	s := c.Snapshot()

	if s.CommandsSent != 3 {
		t.Errorf("CommandsSent = %d, want 3", s.CommandsSent)
	}
	if s.ResponsesReceived != 2 {
		t.Errorf("ResponsesReceived = %d, want 2", s.ResponsesReceived)
	}
	if s.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", s.Timeouts)
	}
	if s.StaleDiscarded != 1 {
		t.Errorf("StaleDiscarded = %d, want 1", s.StaleDiscarded)
	}
	if s.RemoteFailures != 1 {
		t.Errorf("RemoteFailures = %d, want 1", s.RemoteFailures)
	}
	if s.TransportErrors != 1 {
		t.Errorf("TransportErrors = %d, want 1", s.TransportErrors)
	}
	if s.ProtocolErrors != 2 {
		t.Errorf("ProtocolErrors = %d, want 2", s.ProtocolErrors)
	}
	if s.ChannelSent != 1 || s.ChannelDropped != 1 {
		t.Errorf("channel = %d/%d, want 1/1", s.ChannelSent, s.ChannelDropped)
	}
	if s.InputSuppressed != 2 || s.InputReplayed != 1 {
		t.Errorf("input = %d/%d, want 2/1", s.InputSuppressed, s.InputReplayed)
	}
	if s.ChannelReceived != 1 || s.CaptureErrors != 1 {
		t.Errorf("received/capture = %d/%d, want 1/1", s.ChannelReceived, s.CaptureErrors)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("none", "heap", "s-1", "server")
	s := c.Snapshot()

	if s.LockPolicy != "none" {
		t.Errorf("LockPolicy = %q, want %q", s.LockPolicy, "none")
	}
	if s.Transport != "heap" {
		t.Errorf("Transport = %q, want %q", s.Transport, "heap")
	}
	if s.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want %q", s.SessionID, "s-1")
	}
	if s.Role != "server" {
		t.Errorf("Role = %q, want %q", s.Role, "server")
	}
}

func TestCollector_Absorb(t *testing.T) {
	c := NewCollector("", "", "", "")
	c.AbsorbCacheStats(5, 2, 1, 3)
	c.AbsorbQueueStats(4, 512, 4096)
	// Absorbing replaces rather than accumulates.
	c.AbsorbCacheStats(6, 2, 1, 3)

	s := c.Snapshot()
	if s.CacheHits != 6 || s.CacheMisses != 2 || s.CacheCollisions != 1 || s.CacheEntries != 3 {
		t.Errorf("cache = %+v", s)
	}
	if s.QueueCongested != 4 || s.QueueHighWatermark != 512 || s.QueueCapacity != 4096 {
		t.Errorf("queue = %+v", s)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.IncCommandSent()
	c.IncTimeout()
	c.AbsorbCacheStats(1, 1, 1, 1)
	if s := c.Snapshot(); s != (Snapshot{}) {
		t.Errorf("nil Snapshot = %+v", s)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector("", "", "", "")
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.IncCommandSent()
				c.IncResponseReceived()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	if s.CommandsSent != 1000 || s.ResponsesReceived != 1000 {
		t.Errorf("counts = %d/%d, want 1000/1000", s.CommandsSent, s.ResponsesReceived)
	}
}

func TestSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.msgpack")
	want := Snapshot{CommandsSent: 9, Timeouts: 1, SessionID: "abc", Role: "client"}
	if err := WriteFile(path, want); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != want {
		t.Errorf("ReadFile = %+v, want %+v", got, want)
	}

	if err := os.WriteFile(path, []byte{0xc1}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Error("expected decode error")
	}
}
