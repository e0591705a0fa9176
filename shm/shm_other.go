//go:build !unix

package shm

// Open is not supported on this platform.
func Open(path string, size int, create bool) (Region, error) {
	return nil, ErrUnsupported
}
