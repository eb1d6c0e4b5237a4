package meeting

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay is a pause drawn uniformly from [Min, Max].
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Fixed returns a delay of exactly d.
func Fixed(d time.Duration) Delay {
	return Delay{Min: d, Max: d}
}

// Pacer inserts the pauses between turns.
type Pacer interface {
	Pause(ctx context.Context, d Delay) error
}

// RandomPacer sleeps for a random duration within the delay bounds.
type RandomPacer struct{}

// Pause implements Pacer.
func (RandomPacer) Pause(ctx context.Context, d Delay) error {
	wait := d.Min
	if d.Max > d.Min {
		wait += time.Duration(rand.Int64N(int64(d.Max-d.Min) + 1)) //nolint:gosec // pacing only
	}
	return sleep(ctx, wait)
}

// NoDelay never waits; it only reports cancellation.
type NoDelay struct{}

// Pause implements Pacer.
func (NoDelay) Pause(ctx context.Context, _ Delay) error {
	return ctx.Err() //nolint:wrapcheck // callers compare with context errors
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err() //nolint:wrapcheck // callers compare with context errors
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // callers compare with context errors
	case <-timer.C:
		return nil
	}
}
