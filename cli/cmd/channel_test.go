//go:build unix

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
	"github.com/pithecene-io/tether/msgchan"
)

func TestChannelHost_ReceivesNotify(t *testing.T) {
	dir := shortTempDir(t)
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	hostMetrics := metrics.NewCollector("", "datagram", "", "server")
	host, err := openChannelHost(dir, "chan", log.NewNop(), hostMetrics)
	if err != nil {
		t.Fatalf("openChannelHost: %v", err)
	}
	defer func() { _ = host.Close() }()
	go func() { _ = host.run(ctx) }()

	clientMetrics := metrics.NewCollector("", "datagram", "", "client")
	res, err := notify(ctx, dir, "chan", log.NewNop(), clientMetrics)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if res.Peer != uint32(msgchan.SessionThreadID("chan")) {
		t.Errorf("peer = %d", res.Peer)
	}
	if n := clientMetrics.Snapshot().ChannelSent; n != 6 {
		t.Errorf("client ChannelSent = %d, want 6", n)
	}

	waitFor(t, ctx, func() bool {
		return host.focus.Load() == 2 && host.forwarded.Load() == 2 && host.toggles.Load() == 2
	})
	if host.ch.State() != msgchan.Established {
		t.Errorf("host state = %s", host.ch.State())
	}
	if !host.focused.Load() {
		t.Error("host recorded focus loss after regain")
	}
	if host.ui.Active() {
		t.Error("overlay left active after toggle off")
	}
	if n := hostMetrics.Snapshot().ChannelReceived; n != 6 {
		t.Errorf("host ChannelReceived = %d, want 6", n)
	}
}

func TestNotify_NoHost(t *testing.T) {
	_, err := notify(t.Context(), shortTempDir(t), "absent", log.NewNop(), nil)
	if !errors.Is(err, msgchan.ErrNoThread) {
		t.Fatalf("notify without host = %v, want ErrNoThread", err)
	}
}
