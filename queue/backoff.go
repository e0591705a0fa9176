package queue

import (
	"context"
	"runtime"
	"time"
)

// Backoff paces a polling loop: a few scheduler yields, then sleeps that
// double from MinSleep up to MaxSleep. The zero value is ready to use.
type Backoff struct {
	spins int
	sleep time.Duration
}

// Backoff pacing.
const (
	spinYields = 64
	MinSleep   = 20 * time.Microsecond
	MaxSleep   = time.Millisecond
)

// Wait pauses once. It returns ctx.Err() if ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.spins < spinYields {
		b.spins++
		runtime.Gosched()
		return nil
	}
	if b.sleep == 0 {
		b.sleep = MinSleep
	}
	t := time.NewTimer(b.sleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if b.sleep < MaxSleep {
		b.sleep *= 2
		if b.sleep > MaxSleep {
			b.sleep = MaxSleep
		}
	}
	return nil
}

// Reset restarts the pacing from the spin phase.
func (b *Backoff) Reset() {
	b.spins = 0
	b.sleep = 0
}
