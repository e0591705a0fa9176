// Package iox provides helpers for cleanup paths.
package iox

// DiscardErr calls fn and discards the returned error. Use for cleanup
// calls whose errors are unactionable:
//
//	defer iox.DiscardErr(logger.Sync)
func DiscardErr(fn func() error) { _ = fn() }

// RunAll calls every fn in order, even after a failure, and returns the
// first error. Use when releasing several resources that must all be
// released:
//
//	return iox.RunAll(p.Commands.Release, p.Responses.Release)
func RunAll(fns ...func() error) error {
	var first error
	for _, fn := range fns {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
