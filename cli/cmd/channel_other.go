//go:build !unix

package cmd

import (
	"context"
	"errors"

	"github.com/pithecene-io/tether/log"
	"github.com/pithecene-io/tether/metrics"
)

var errNoDatagramChannel = errors.New("message channel requires unix datagram sockets")

type channelHost struct{}

func openChannelHost(string, string, *log.Logger, *metrics.Collector) (*channelHost, error) {
	return nil, errNoDatagramChannel
}

func (*channelHost) run(context.Context) error { return nil }

func (*channelHost) Close() error { return nil }

func notify(context.Context, string, string, *log.Logger, *metrics.Collector) (*NotifyResult, error) {
	return nil, errNoDatagramChannel
}
