package assistant

import (
	"context"
	"time"
	"unicode/utf8"
)

// StreamConfig holds the simulated latency profile of the assistant backend.
type StreamConfig struct {
	HandshakeDelay time.Duration
	ThinkMin       time.Duration
	ThinkMax       time.Duration
	CharMin        time.Duration
	CharMax        time.Duration
	FailureRate    float64
	FailurePenalty time.Duration
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HandshakeDelay: 100 * time.Millisecond,
		ThinkMin:       500 * time.Millisecond,
		ThinkMax:       2 * time.Second,
		CharMin:        30 * time.Millisecond,
		CharMax:        80 * time.Millisecond,
		FailureRate:    0.1,
		FailurePenalty: time.Second,
	}
}

// Streamer delivers a finished reply as a sequence of growing prefixes.
type Streamer struct {
	cfg StreamConfig
	rnd Rand
}

func NewStreamer(cfg StreamConfig, rnd Rand) *Streamer {
	if rnd == nil {
		rnd = DefaultRand()
	}
	return &Streamer{cfg: cfg, rnd: rnd}
}

// Stream waits a thinking delay, may fail with *TransientNetworkError before
// emitting anything, then calls emit once per rune with the prefix ending at
// that rune. On success the final emitted value is always full. A done ctx
// stops the stream with ErrCanceled and no further emits.
func (s *Streamer) Stream(ctx context.Context, full string, emit func(prefix string)) error {
	if err := sleep(ctx, uniform(s.rnd, s.cfg.ThinkMin, s.cfg.ThinkMax)); err != nil {
		return err
	}

	if s.cfg.FailureRate > 0 && s.rnd.Float64() < s.cfg.FailureRate {
		if err := sleep(ctx, s.cfg.FailurePenalty); err != nil {
			return err
		}
		return &TransientNetworkError{Message: networkTimeout}
	}

	var last string
	emitted := false
	for i := 0; i < len(full); {
		_, size := utf8.DecodeRuneInString(full[i:])
		if err := sleep(ctx, uniform(s.rnd, s.cfg.CharMin, s.cfg.CharMax)); err != nil {
			return err
		}
		i += size
		last = full[:i]
		emit(last)
		emitted = true
	}

	if !emitted || last != full {
		emit(full)
	}
	return nil
}
