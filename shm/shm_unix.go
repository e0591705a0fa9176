//go:build unix

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type mappedRegion struct {
	b []byte
}

// Open maps the file at path into memory. With create set, the file is
// created (or truncated) to size bytes; otherwise it must already exist
// with at least size bytes.
func Open(path string, size int, create bool) (Region, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if create {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, fmt.Errorf("shm: size %s: %w", path, err)
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("shm: stat %s: %w", path, err)
		}
		if info.Size() < int64(size) {
			return nil, fmt.Errorf("shm: %s is %d bytes, need %d", path, info.Size(), size)
		}
	}

	b, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}
	return &mappedRegion{b: b}, nil
}

func (m *mappedRegion) Bytes() []byte { return m.b }

func (m *mappedRegion) Close() error {
	if m.b == nil {
		return nil
	}
	err := unix.Munmap(m.b)
	m.b = nil
	return err
}
