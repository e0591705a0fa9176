//go:build unix

package msgchan

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func shortTempDir(t *testing.T) string {
	t.Helper()
	// Socket paths are limited to ~100 bytes; t.TempDir can exceed that.
	dir, err := os.MkdirTemp("", "tmc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestDatagramPoster_EndToEnd(t *testing.T) {
	dir := shortTempDir(t)
	srvP, err := ListenDatagram(dir, 100)
	if err != nil {
		t.Fatalf("listen server: %v", err)
	}
	defer func() { _ = srvP.Close() }()
	cliP, err := ListenDatagram(dir, 200)
	if err != nil {
		t.Fatalf("listen client: %v", err)
	}
	defer func() { _ = cliP.Close() }()

	srv, err := NewServer("global", srvP, Options{})
	if err != nil {
		t.Fatal(err)
	}
	cli, err := NewClient("global", cliP, srvP.ThreadID(), Options{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	got := make(chan [2]uint64, 1)
	srv.RegisterHandler(0x0200, func(a, b uint64) bool {
		got <- [2]uint64{a, b}
		return true
	})
	go func() { _ = srvP.Run(ctx, srv.Dispatch) }()
	go func() { _ = cliP.Run(ctx, cli.Dispatch) }()

	if err := cli.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for cli.State() != Established {
		if time.Now().After(deadline) {
			t.Fatal("handshake did not complete")
		}
		time.Sleep(time.Millisecond)
	}
	if srv.Peer() != 200 {
		t.Errorf("server peer = %d", srv.Peer())
	}

	if err := cli.Send(0x0200, 1<<40, 5); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case v := <-got:
		if v != [2]uint64{1 << 40, 5} {
			t.Errorf("received %v", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("datagram not delivered")
	}
}

func TestDatagramPoster_MissingPeer(t *testing.T) {
	dir := shortTempDir(t)
	p, err := ListenDatagram(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	if err := p.Post(2, 0x10, 0, 0); !errors.Is(err, ErrNoThread) {
		t.Errorf("Post to missing peer = %v, want ErrNoThread", err)
	}
}

func TestDatagramPoster_RunStopsOnCancel(t *testing.T) {
	p, err := ListenDatagram(shortTempDir(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = p.Close() }()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, func(Message) {}) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
