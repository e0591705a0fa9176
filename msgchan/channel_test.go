package msgchan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/tether/metrics"
)

// deliver dispatches the next message queued on q to c.
func deliver(t *testing.T, q *ThreadQueue, c *Channel) {
	t.Helper()
	select {
	case m := <-q.Messages():
		c.Dispatch(m)
	case <-time.After(time.Second):
		t.Fatalf("no message for channel %s", c.Name())
	}
}

func newPair(t *testing.T) (*Hub, *ThreadQueue, *ThreadQueue, *Channel, *Channel) {
	t.Helper()
	hub := NewHub()
	srvQ, cliQ := hub.NewThread(0), hub.NewThread(0)
	srv, err := NewServer("global", srvQ, Options{})
	if err != nil {
		t.Fatal(err)
	}
	cli, err := NewClient("global", cliQ, srvQ.ThreadID(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	return hub, srvQ, cliQ, srv, cli
}

func TestChannel_SendRequiresHandshake(t *testing.T) {
	m := metrics.NewCollector("", "", "", "")
	hub := NewHub()
	q := hub.NewThread(0)
	peer := hub.NewThread(0)
	c, err := NewClient("global", q, peer.ThreadID(), Options{Metrics: m})
	if err != nil {
		t.Fatal(err)
	}

	err = c.Send(0x100, 1, 2)
	if !errors.Is(err, ErrNotEstablished) {
		t.Fatalf("Send = %v, want ErrNotEstablished", err)
	}
	if len(peer.Messages()) != 0 {
		t.Error("message delivered before handshake")
	}
	if m.Snapshot().ChannelDropped != 1 {
		t.Errorf("ChannelDropped = %d", m.Snapshot().ChannelDropped)
	}

	// A sent but unanswered handshake is still not established.
	if err := c.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if c.State() != HandshakeSent {
		t.Errorf("State = %s, want handshake_sent", c.State())
	}
	if err := c.Send(0x100, 1, 2); !errors.Is(err, ErrNotEstablished) {
		t.Errorf("Send after unanswered handshake = %v", err)
	}
}

func TestChannel_Handshake(t *testing.T) {
	_, srvQ, cliQ, srv, cli := newPair(t)

	if err := cli.Handshake(); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	deliver(t, srvQ, srv)
	if srv.State() != Established || srv.Peer() != cliQ.ThreadID() {
		t.Fatalf("server state %s peer %d", srv.State(), srv.Peer())
	}
	deliver(t, cliQ, cli)
	if cli.State() != Established {
		t.Fatalf("client state %s", cli.State())
	}

	var gotA, gotB uint64
	srv.RegisterHandler(0x0100, func(a, b uint64) bool {
		gotA, gotB = a, b
		return true
	})
	if err := cli.Send(0x0100, 7, 9); err != nil {
		t.Fatalf("Send: %v", err)
	}
	deliver(t, srvQ, srv)
	if gotA != 7 || gotB != 9 {
		t.Errorf("handler got (%d, %d)", gotA, gotB)
	}

	// The server can talk back without its own handshake.
	if err := srv.Send(0x0101, 0, 0); err != nil {
		t.Errorf("server Send: %v", err)
	}
}

func TestChannel_PeerLearnedFromHandshake(t *testing.T) {
	hub := NewHub()
	qa, qb := hub.NewThread(0), hub.NewThread(0)
	a, _ := NewClient("renderer", qa, 0, Options{})
	b, _ := NewClient("renderer", qb, qa.ThreadID(), Options{})

	if err := a.Handshake(); !errors.Is(err, ErrNoPeer) {
		t.Fatalf("Handshake without peer = %v, want ErrNoPeer", err)
	}
	if err := b.Handshake(); err != nil {
		t.Fatal(err)
	}
	deliver(t, qa, a)
	if a.Peer() != qb.ThreadID() {
		t.Errorf("learned peer %d, want %d", a.Peer(), qb.ThreadID())
	}
	deliver(t, qb, b)
	if a.State() != Established || b.State() != Established {
		t.Errorf("states %s / %s", a.State(), b.State())
	}
}

func TestChannel_OnMessageDispatch(t *testing.T) {
	_, _, _, srv, _ := newPair(t)
	srv.RegisterHandler(1, func(a, b uint64) bool { return a == 1 })

	if !srv.OnMessage(1, 1, 0) {
		t.Error("handler result not propagated (true)")
	}
	if srv.OnMessage(1, 0, 0) {
		t.Error("handler result not propagated (false)")
	}
	if srv.OnMessage(2, 0, 0) {
		t.Error("unregistered message reported handled")
	}
}

func TestChannel_NamesAgreeAcrossEnds(t *testing.T) {
	_, _, _, srv, cli := newPair(t)
	a, err := srv.Register(NameUIActive)
	if err != nil {
		t.Fatal(err)
	}
	b, err := cli.Register(NameUIActive)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || a < FirstRegistered {
		t.Errorf("ids = %#x / %#x", a, b)
	}
}

func TestChannel_RunLoops(t *testing.T) {
	_, srvQ, cliQ, srv, cli := newPair(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	got := make(chan uint64, 1)
	srv.RegisterHandler(0x200, func(a, _ uint64) bool {
		got <- a
		return true
	})
	go func() { _ = srvQ.Run(ctx, srv.Dispatch) }()
	go func() { _ = cliQ.Run(ctx, cli.Dispatch) }()

	if err := cli.Handshake(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for cli.State() != Established {
		if time.Now().After(deadline) {
			t.Fatal("handshake did not complete")
		}
		time.Sleep(time.Millisecond)
	}
	if err := cli.Send(0x200, 42, 0); err != nil {
		t.Fatal(err)
	}
	select {
	case a := <-got:
		if a != 42 {
			t.Errorf("a = %d", a)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSessionThreadID(t *testing.T) {
	a, b := SessionThreadID("game"), SessionThreadID("game")
	if a != b || a == 0 {
		t.Fatalf("SessionThreadID = %d, %d", a, b)
	}
	if SessionThreadID("other") == a {
		t.Error("distinct sessions share a thread id")
	}
}
