// Package sampler drives fixed-cadence frame sampling over a media handle.
package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/models"
)

// FrameSource is the part of a media handle the sampler reads from
type FrameSource interface {
	ReadFrame() (*models.Frame, error)
	PixelAccess() bool
}

// Tick is one sampling step. Frame is nil in degraded mode, when the source
// exposes no pixels.
type Tick struct {
	Seq   uint64
	Frame *models.Frame
	At    time.Time
}

// Degraded reports whether the tick carries no pixels
func (t Tick) Degraded() bool { return t.Frame == nil }

// Sampler runs at most one sampling loop at a time. The tick channel is
// unbuffered, so the producer waits for the consumer and ticks never overlap.
type Sampler struct {
	name   string
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, logger zerolog.Logger) *Sampler {
	return &Sampler{
		name:   name,
		logger: logger.With().Str("sampler", name).Logger(),
	}
}

// Start begins a new sequence at tick 0: one tick after settle, then one per
// cadence. A running loop is stopped first. The returned channel closes when
// the loop ends through Stop, a later Start, or ctx cancellation.
func (s *Sampler) Start(ctx context.Context, src FrameSource, cadence, settle time.Duration) <-chan Tick {
	s.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	ticks := make(chan Tick)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go s.run(loopCtx, src, cadence, settle, ticks, done)

	s.logger.Debug().
		Dur("cadence", cadence).
		Dur("settle", settle).
		Bool("degraded", !src.PixelAccess()).
		Msg("Sampler started")
	return ticks
}

// Stop cancels the running loop and waits for it to exit. Safe to call when
// nothing is running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Debug().Msg("Sampler stopped")
}

// Running reports whether a loop is active
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sampler) run(ctx context.Context, src FrameSource, cadence, settle time.Duration, ticks chan<- Tick, done chan struct{}) {
	defer close(done)
	defer close(ticks)

	if settle > 0 {
		timer := time.NewTimer(settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	var seq uint64
	emit := func(at time.Time) bool {
		tick := Tick{Seq: seq, At: at}
		if src.PixelAccess() {
			frame, err := src.ReadFrame()
			if err != nil {
				s.logger.Debug().Err(err).Uint64("seq", seq).Msg("Frame capture failed, skipping tick")
				return true
			}
			tick.Frame = frame
		}

		select {
		case <-ctx.Done():
			return false
		case ticks <- tick:
			seq++
			return true
		}
	}

	if !emit(time.Now()) {
		return
	}

	if cadence <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			if !emit(at) {
				return
			}
		}
	}
}
