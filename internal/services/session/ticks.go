package session

import (
	"errors"
	"runtime/debug"

	"crowdwatch-worker-go/internal/logging"
	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/analysis"
	"crowdwatch-worker-go/internal/services/events"
	"crowdwatch-worker-go/internal/services/sampler"
)

func (s *Session) startSamplingLocked(src sampler.FrameSource) {
	id, ctx := s.id, s.ctx

	previewTicks := s.preview.Start(ctx, src, s.opts.PreviewInterval, s.opts.SettleDelay)
	analysisTicks := s.analysis.Start(ctx, src, s.opts.AnalysisInterval, s.opts.SettleDelay)

	s.consumers.Add(2)
	go s.consume(id, previewTicks, s.handlePreviewTick)
	go s.consume(id, analysisTicks, s.handleAnalysisTick)
}

func (s *Session) stopSamplingLocked() {
	s.preview.Stop()
	s.analysis.Stop()
}

func (s *Session) consume(id string, ticks <-chan sampler.Tick, handle func(string, sampler.Tick)) {
	defer s.consumers.Done()
	for tick := range ticks {
		s.safeHandle(id, tick, handle)
	}
}

func (s *Session) safeHandle(id string, tick sampler.Tick, handle func(string, sampler.Tick)) {
	defer func() {
		if r := recover(); r != nil {
			logging.WithSession(s.logger, id).Error().
				Interface("panic", r).
				Uint64("seq", tick.Seq).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in tick handler")
		}
	}()
	handle(id, tick)
}

// current reports whether id is still the active connected session
func (s *Session) current(id string) (models.ConnectionPhase, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != id || !s.state.IsConnected() {
		return "", false
	}
	return s.state.Phase, true
}

// handlePreviewTick runs the fast loop: blank check and preview publishing.
// Degraded ticks have nothing to show.
func (s *Session) handlePreviewTick(id string, tick sampler.Tick) {
	if tick.Degraded() {
		return
	}
	if _, ok := s.current(id); !ok {
		return
	}

	luminance := analysis.MeanLuminance(tick.Frame)
	s.setSignal(id, luminance < analysis.BlankLuminanceThreshold, luminance)

	if s.deps.Preview != nil {
		if err := s.deps.Preview.PublishFrame(tick.Frame); err != nil {
			logging.WithSession(s.logger, id).Debug().Err(err).Msg("Failed to publish preview frame")
		}
	}
}

// handleAnalysisTick runs blank filter, detector, classifier and alert gate
// in order. The detector result is dropped if the session changed while the
// call was in flight.
func (s *Session) handleAnalysisTick(id string, tick sampler.Tick) {
	phase, ok := s.current(id)
	if !ok {
		return
	}
	logger := logging.WithSession(s.logger, id)

	if !tick.Degraded() {
		luminance := analysis.MeanLuminance(tick.Frame)
		if luminance < analysis.BlankLuminanceThreshold {
			logger.Debug().
				Err(models.ErrBlankSignal).
				Uint64("seq", tick.Seq).
				Float64("luminance", luminance).
				Msg("Blank frame, skipping detection")
			s.setSignal(id, true, luminance)
			return
		}
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	result, err := s.deps.Detector.Detect(ctx, tick.Frame)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug().Uint64("seq", tick.Seq).Msg("Detection cancelled, session closed")
			return
		}
		if !errors.Is(err, models.ErrDetectorFailure) {
			err = errors.Join(models.ErrDetectorFailure, err)
		}
		logger.Warn().Err(err).Uint64("seq", tick.Seq).Msg("Detection failed, no result this tick")
		return
	}

	status := analysis.Classify(result)

	s.mu.Lock()
	if s.id != id || s.state.Phase != phase {
		s.mu.Unlock()
		logger.Debug().Uint64("seq", tick.Seq).Msg("Discarding stale detection result")
		return
	}
	s.status = &status
	signalChanged := s.noSignal
	s.noSignal = false
	if s.deps.Hub != nil {
		if signalChanged {
			s.deps.Hub.Publish(events.Event{Type: events.TypeSignal, SessionID: id, Data: events.SignalData{NoSignal: false}})
		}
		s.deps.Hub.Publish(events.Event{Type: events.TypeStatus, SessionID: id, Data: status, Timestamp: status.Timestamp})
	}

	// Dispatch before unlocking so a concurrent Disconnect cannot be
	// followed by an alert for the session it just closed.
	if ev := analysis.MaybeAlert(status, s.alertsEnabled); ev != nil && s.deps.Alerts != nil {
		ev.SessionID = id
		ev.Source = models.AlertSourceStream
		s.deps.Alerts.Dispatch(*ev)
	}
	s.mu.Unlock()

	logger.Debug().
		Uint64("seq", tick.Seq).
		Bool("degraded", tick.Degraded()).
		Uint("people_count", status.PeopleCount).
		Bool("is_crowded", status.IsCrowded).
		Msg("Crowd status updated")
}

func (s *Session) setSignal(id string, noSignal bool, luminance float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != id || !s.state.IsConnected() || s.noSignal == noSignal {
		return
	}
	s.noSignal = noSignal

	data := events.SignalData{NoSignal: noSignal, Luminance: luminance}
	if noSignal {
		data.Message = msgNoSignal
	}
	if s.deps.Hub != nil {
		s.deps.Hub.Publish(events.Event{Type: events.TypeSignal, SessionID: id, Data: data})
	}
}
