// Package session owns the lifecycle of a stream session: connecting,
// primary/fallback transport, the two sampling loops and crowd status.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/logging"
	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/alerts"
	"crowdwatch-worker-go/internal/services/detection"
	"crowdwatch-worker-go/internal/services/events"
	"crowdwatch-worker-go/internal/services/media"
	"crowdwatch-worker-go/internal/services/sampler"
	"crowdwatch-worker-go/internal/services/transport"
)

const (
	msgUnreachable    = "Failed to connect to stream. Please check the URL and try again."
	msgPrimaryLost    = "Direct stream playback failed and no fallback view exists for this stream."
	msgFallbackFailed = "Fallback mode failed. The stream is unreachable."
	msgNoSignal       = "No valid video feed detected"
)

// Alerter receives alerts and state transitions
type Alerter interface {
	Dispatch(ev models.AlertEvent) bool
	PublishState(change alerts.StateChange)
}

// FramePublisher re-serves sampled frames to the browser
type FramePublisher interface {
	PublishFrame(frame *models.Frame) error
	Clear()
}

type Options struct {
	PreviewInterval  time.Duration
	AnalysisInterval time.Duration
	SettleDelay      time.Duration
	ConnectTimeout   time.Duration
	AlertsEnabled    bool
}

// Deps are the collaborators of a Session. Alerts, Hub and Preview are optional.
type Deps struct {
	Primary  media.Opener
	Fallback media.Opener
	Detector detection.Detector
	Alerts   Alerter
	Hub      *events.Hub
	Preview  FramePublisher
	Demos    []models.DemoStream
}

// Session is the single writer of its ConnectionState and CrowdStatus. All
// fields below mu are only touched with mu held.
type Session struct {
	opts   Options
	deps   Deps
	demos  map[string]models.DemoStream
	logger zerolog.Logger

	preview  *sampler.Sampler
	analysis *sampler.Sampler

	// consumers tracks the tick consumer goroutines
	consumers sync.WaitGroup
	// closers tracks media handles being released off the lock
	closers sync.WaitGroup

	mu            sync.Mutex
	id            string
	state         models.ConnectionState
	errMsg        string
	source        *models.StreamSource
	status        *models.CrowdStatus
	noSignal      bool
	alertsEnabled bool
	handle        media.Handle
	ctx           context.Context
	cancel        context.CancelFunc
}

func New(opts Options, deps Deps, logger zerolog.Logger) *Session {
	demos := make(map[string]models.DemoStream, len(deps.Demos))
	for _, d := range deps.Demos {
		demos[d.ID] = d
	}

	return &Session{
		opts:          opts,
		deps:          deps,
		demos:         demos,
		logger:        logger,
		preview:       sampler.New("preview", logger),
		analysis:      sampler.New("analysis", logger),
		state:         models.ConnectionState{Phase: models.PhaseIdle},
		alertsEnabled: opts.AlertsEnabled,
	}
}

// Connect starts a new session on rawURL. It blocks until the primary
// transport delivered its first frame, failed, or the session was closed.
func (s *Session) Connect(ctx context.Context, rawURL string, kind models.StreamKind) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("%w: stream url is required", models.ErrInvalidInput)
	}
	if !kind.IsValid() {
		return fmt.Errorf("%w: unsupported stream kind %q", models.ErrInvalidInput, kind)
	}

	s.mu.Lock()
	if !s.state.CanConnect() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: session is %s", models.ErrAlreadyConnected, state)
	}
	if !s.deps.Detector.Ready() {
		s.mu.Unlock()
		return models.ErrDetectorNotReady
	}

	id := uuid.NewString()
	src := transport.Resolve(rawURL, kind)
	sessCtx, cancel := context.WithCancel(context.Background())

	s.id = id
	s.source = &src
	s.status = nil
	s.noSignal = false
	s.errMsg = ""
	s.ctx, s.cancel = sessCtx, cancel
	s.setStateLocked(models.ConnectionState{Phase: models.PhaseConnecting})
	s.mu.Unlock()

	logger := logging.WithSession(s.logger, id)
	logger.Info().
		Str("raw_url", rawURL).
		Str("canonical_url", src.CanonicalURL).
		Str("kind", kind.String()).
		Msg("Connecting to stream")

	openCtx, cancelOpen := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancelOpen()
	stopOnClose := context.AfterFunc(sessCtx, cancelOpen)
	defer stopOnClose()

	handle, err := s.deps.Primary.Open(openCtx, src)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != id || s.state.Phase != models.PhaseConnecting {
		if handle != nil {
			s.releaseHandle(handle)
		}
		logger.Info().Msg("Session closed while connecting")
		return models.ErrSessionClosed
	}

	if err != nil {
		logger.Warn().Err(err).Msg("Primary transport unreachable")
		s.failLocked(models.ReasonUnreachable, msgUnreachable, false)
		if !errors.Is(err, models.ErrTransportUnreachable) {
			err = fmt.Errorf("%w: %w", models.ErrTransportUnreachable, err)
		}
		return err
	}

	s.handle = handle
	s.setStateLocked(models.ConnectionState{Phase: models.PhaseConnectedPrimary})
	s.startSamplingLocked(handle)
	go s.watch(id, models.TransportPrimary, handle)

	logger.Info().Msg("Connected on primary transport")
	return nil
}

// ConnectDemo connects to a stream from the demo catalog
func (s *Session) ConnectDemo(ctx context.Context, demoID string) error {
	demo, ok := s.demos[demoID]
	if !ok {
		return fmt.Errorf("%w: demo stream %q", models.ErrNotFound, demoID)
	}
	return s.Connect(ctx, demo.URL, demo.Kind)
}

// Demos lists the demo catalog
func (s *Session) Demos() []models.DemoStream {
	out := make([]models.DemoStream, len(s.deps.Demos))
	copy(out, s.deps.Demos)
	return out
}

// Disconnect stops sampling, releases the media handle and clears the session.
// Calling it in any state is allowed; repeated calls are no-ops.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase == models.PhaseDisconnected {
		return
	}

	id := s.id
	s.stopSamplingLocked()
	s.closeHandleLocked()
	if s.cancel != nil {
		s.cancel()
	}

	if s.deps.Preview != nil {
		s.deps.Preview.Clear()
	}

	s.status = nil
	s.noSignal = false
	s.errMsg = ""
	s.setStateLocked(models.ConnectionState{Phase: models.PhaseDisconnected})
	s.source = nil
	s.id = ""

	if id != "" {
		logging.WithSession(s.logger, id).Info().Msg("Disconnected from stream")
	}
}

// ReportMediaError handles a playback failure observed outside the worker,
// such as the browser's player failing on the canonical URL. Reports that do
// not match the current transport are ignored.
func (s *Session) ReportMediaError(mode models.TransportMode, cause string) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w: unknown transport %q", models.ErrInvalidInput, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleFailureLocked(s.id, mode, errors.New(cause))
	return nil
}

func (s *Session) SetAlertsEnabled(enabled bool) {
	s.mu.Lock()
	s.alertsEnabled = enabled
	s.mu.Unlock()

	s.logger.Info().Bool("alerts_enabled", enabled).Msg("Alerts toggled")
}

func (s *Session) AlertsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertsEnabled
}

// DetectorReady reports whether the detector finished warming up
func (s *Session) DetectorReady() bool {
	return s.deps.Detector.Ready()
}

func (s *Session) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.SessionSnapshot{
		SessionID:     s.id,
		State:         s.state,
		ErrorMessage:  s.errMsg,
		NoSignal:      s.noSignal,
		AlertsEnabled: s.alertsEnabled,
		DetectorReady: s.deps.Detector.Ready(),
	}
	if s.source != nil {
		src := *s.source
		snap.Source = &src
		snap.TransportMode = src.TransportMode
	}
	if s.status != nil {
		status := *s.status
		snap.CrowdStatus = &status
	}
	return snap
}

// Shutdown disconnects and waits for the tick consumers and pending handle
// closes to finish
func (s *Session) Shutdown(ctx context.Context) error {
	s.Disconnect()

	done := make(chan struct{})
	go func() {
		s.consumers.Wait()
		s.closers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) watch(id string, mode models.TransportMode, h media.Handle) {
	err, ok := <-h.Failures()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != h {
		return
	}
	s.handleFailureLocked(id, mode, err)
}

func (s *Session) handleFailureLocked(id string, mode models.TransportMode, cause error) {
	if id == "" || s.id != id {
		return
	}
	logger := logging.WithSession(s.logger, id)

	switch {
	case mode == models.TransportPrimary && s.state.Phase == models.PhaseConnectedPrimary:
		if !transport.HasFallback(s.source.Kind) {
			logger.Warn().Err(cause).Msg("Primary transport failed, no fallback available")
			s.failLocked(models.ReasonUnreachable, msgPrimaryLost, true)
			return
		}

		s.stopSamplingLocked()
		s.closeHandleLocked()

		src := transport.Fallback(*s.source)
		s.source = &src
		s.noSignal = false
		s.setStateLocked(models.ConnectionState{Phase: models.PhaseConnectedFallback})
		s.startSamplingLocked(degradedSource{})
		go s.openFallback(id, src)

		logger.Warn().
			Err(cause).
			Str("fallback_url", src.CanonicalURL).
			Msg("Primary transport failed, switched to fallback view")

	case mode == models.TransportFallback && s.state.Phase == models.PhaseConnectedFallback:
		logger.Warn().Err(cause).Msg("Fallback transport failed")
		s.failLocked(models.ReasonFallbackFailed, msgFallbackFailed, true)

	default:
		logger.Debug().
			Err(cause).
			Str("transport", mode.String()).
			Str("state", s.state.String()).
			Msg("Ignoring media error for inactive transport")
	}
}

func (s *Session) openFallback(id string, src models.StreamSource) {
	s.mu.Lock()
	sessCtx := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(sessCtx, s.opts.ConnectTimeout)
	defer cancel()

	handle, err := s.deps.Fallback.Open(ctx, src)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id != id || s.state.Phase != models.PhaseConnectedFallback {
		if handle != nil {
			s.releaseHandle(handle)
		}
		return
	}
	if err != nil {
		s.handleFailureLocked(id, models.TransportFallback, err)
		return
	}

	s.handle = handle
	go s.watch(id, models.TransportFallback, handle)
}

// failLocked moves the session to error(reason), stops sampling and clears
// the crowd status.
func (s *Session) failLocked(reason, message string, clearStatus bool) {
	s.stopSamplingLocked()
	s.closeHandleLocked()
	if s.cancel != nil {
		s.cancel()
	}

	if clearStatus {
		s.status = nil
	}
	s.noSignal = false
	s.errMsg = message
	s.setStateLocked(models.ConnectionState{Phase: models.PhaseError, Reason: reason})
}

func (s *Session) setStateLocked(state models.ConnectionState) {
	if s.state == state {
		return
	}
	s.state = state

	change := alerts.StateChange{
		SessionID: s.id,
		State:     state,
		Timestamp: time.Now(),
	}
	if s.source != nil {
		change.TransportMode = s.source.TransportMode
		change.CanonicalURL = s.source.CanonicalURL
	}

	if s.deps.Hub != nil {
		s.deps.Hub.Publish(events.Event{
			Type:      events.TypeState,
			SessionID: s.id,
			Data:      stateEventData{State: state, Source: s.source, ErrorMessage: s.errMsg},
			Timestamp: change.Timestamp,
		})
	}
	if s.deps.Alerts != nil {
		s.deps.Alerts.PublishState(change)
	}
}

type stateEventData struct {
	State        models.ConnectionState `json:"state"`
	Source       *models.StreamSource   `json:"source,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// closeHandleLocked detaches the current handle. Closing happens off the
// lock since a capture blocked in a read can take seconds to stop.
func (s *Session) closeHandleLocked() {
	if s.handle == nil {
		return
	}
	h := s.handle
	s.handle = nil
	s.releaseHandle(h)
}

func (s *Session) releaseHandle(h media.Handle) {
	s.closers.Add(1)
	go func() {
		defer s.closers.Done()
		if err := h.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Error closing media handle")
		}
	}()
}

// degradedSource stands in for the fallback view until and after it opens:
// ticks keep flowing without pixels.
type degradedSource struct{}

func (degradedSource) ReadFrame() (*models.Frame, error) { return nil, models.ErrNoPixelAccess }
func (degradedSource) PixelAccess() bool                 { return false }
