package assistant

import (
	"context"
	"math/rand"
	"time"
)

// Rand is the source of every random decision the assistant makes.
// Float64 must return values in [0, 1).
type Rand interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// DefaultRand returns a goroutine-safe source backed by math/rand.
func DefaultRand() Rand { return globalRand{} }

func pick(r Rand, items []string) string {
	if len(items) == 0 {
		return ""
	}
	i := int(r.Float64() * float64(len(items)))
	if i >= len(items) {
		i = len(items) - 1
	}
	if i < 0 {
		i = 0
	}
	return items[i]
}

func uniform(r Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.Float64()*float64(hi-lo))
}

// sleep waits for d or until ctx is done. The context is checked even for
// zero delays so a canceled stream stops at the next step.
func sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ErrCanceled
	case <-timer.C:
		return nil
	}
}
