package queue

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/tether/iox"
	"github.com/pithecene-io/tether/shm"
)

// Pair is the two directions of one bridge: commands flow client to server,
// responses flow server to client.
type Pair struct {
	Commands  *Ring
	Responses *Ring
}

// PairPaths returns the region files used for a session under dir.
func PairPaths(dir, session string) (commands, responses string) {
	return filepath.Join(dir, "tether-"+session+".cmd"), filepath.Join(dir, "tether-"+session+".rsp")
}

// OpenPair maps both directions of a session. The server creates the
// regions; the client attaches to them.
func OpenPair(dir, session string, cmdCapacity, rspCapacity int, create bool, opts Options) (*Pair, error) {
	cmdPath, rspPath := PairPaths(dir, session)

	cmdRegion, err := shm.Open(cmdPath, HeaderSize+cmdCapacity, create)
	if err != nil {
		return nil, fmt.Errorf("command queue: %w", err)
	}
	rspRegion, err := shm.Open(rspPath, HeaderSize+rspCapacity, create)
	if err != nil {
		_ = cmdRegion.Close()
		return nil, fmt.Errorf("response queue: %w", err)
	}

	cmds, err := New(cmdRegion, create, opts)
	if err != nil {
		_ = iox.RunAll(cmdRegion.Close, rspRegion.Close)
		return nil, fmt.Errorf("command queue: %w", err)
	}
	rsps, err := New(rspRegion, create, opts)
	if err != nil {
		_ = iox.RunAll(cmdRegion.Close, rspRegion.Close)
		return nil, fmt.Errorf("response queue: %w", err)
	}
	return &Pair{Commands: cmds, Responses: rsps}, nil
}

// NewHeapPair returns an in-process pair, used by tests and single-process
// embeddings.
func NewHeapPair(cmdCapacity, rspCapacity int, opts Options) *Pair {
	return &Pair{
		Commands:  NewHeap(cmdCapacity, opts),
		Responses: NewHeap(rspCapacity, opts),
	}
}

// Close marks both directions closed.
func (p *Pair) Close() error {
	_ = p.Commands.Close()
	return p.Responses.Close()
}

// Release closes both directions and unmaps their regions.
func (p *Pair) Release() error {
	return iox.RunAll(p.Commands.Release, p.Responses.Release)
}

// Detach unmaps both directions and leaves them open for the peer.
func (p *Pair) Detach() error {
	return iox.RunAll(p.Commands.Detach, p.Responses.Detach)
}

// RemovePair deletes the region files of a session.
func RemovePair(dir, session string) error {
	cmdPath, rspPath := PairPaths(dir, session)
	err := os.Remove(cmdPath)
	if rerr := os.Remove(rspPath); err == nil {
		err = rerr
	}
	return err
}
