//go:build unix

package msgchan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// maxDatagram bounds one encoded Message.
const maxDatagram = 256

// DatagramPoster addresses thread queues as unix datagram sockets in a
// shared directory. Each message is one msgpack-encoded datagram; a missing
// or full peer socket drops the message.
type DatagramPoster struct {
	dir   string
	id    ThreadID
	conn  *net.UnixConn
	names *nameTable
}

// SocketPath returns the socket address of thread id under dir.
func SocketPath(dir string, id ThreadID) string {
	return filepath.Join(dir, fmt.Sprintf("tether-%d.sock", id))
}

// ListenDatagram binds the queue for thread id under dir.
func ListenDatagram(dir string, id ThreadID) (*DatagramPoster, error) {
	path := SocketPath(dir, id)
	_ = os.Remove(path)
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return &DatagramPoster{dir: dir, id: id, conn: conn, names: newNameTable()}, nil
}

// ThreadID returns the bound thread identifier.
func (p *DatagramPoster) ThreadID() ThreadID { return p.id }

// Register maps name to its hash-derived id.
func (p *DatagramPoster) Register(name string) (MessageID, error) {
	return p.names.register(name)
}

// Post sends one datagram to thread to.
func (p *DatagramPoster) Post(to ThreadID, msg MessageID, a, b uint64) error {
	data, err := msgpack.Marshal(&Message{From: p.id, ID: msg, A: a, B: b})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	addr := &net.UnixAddr{Name: SocketPath(p.dir, to), Net: "unixgram"}
	if err := p.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		return err
	}
	if _, err := p.conn.WriteToUnix(data, addr); err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w %d: %v", ErrNoThread, to, err)
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fmt.Errorf("%w: thread %d", ErrQueueFull, to)
		}
		return fmt.Errorf("%w %d: %v", ErrNoThread, to, err)
	}
	return nil
}

// Run reads datagrams until ctx is done or the socket is closed, passing
// each decoded message to dispatch. Undecodable datagrams are skipped.
func (p *DatagramPoster) Run(ctx context.Context, dispatch func(Message)) error {
	stop := context.AfterFunc(ctx, func() { _ = p.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := p.conn.ReadFromUnix(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		var m Message
		if err := msgpack.Unmarshal(buf[:n], &m); err != nil {
			continue
		}
		dispatch(m)
	}
}

// Close unbinds the socket and removes its file.
func (p *DatagramPoster) Close() error {
	err := p.conn.Close()
	if rerr := os.Remove(SocketPath(p.dir, p.id)); err == nil && !errors.Is(rerr, os.ErrNotExist) {
		err = rerr
	}
	return err
}
