// Package upload analyses uploaded video files as background jobs.
package upload

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/logging"
	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/analysis"
	"crowdwatch-worker-go/internal/services/detection"
	"crowdwatch-worker-go/internal/services/events"
	"crowdwatch-worker-go/internal/services/media"
)

// AlertDispatcher receives alerts raised by uploaded files
type AlertDispatcher interface {
	Dispatch(ev models.AlertEvent) bool
}

type Options struct {
	SampleFrames int
	// RemoveAfter deletes the analysed file once its job finishes
	RemoveAfter bool
	// RetainFor is how long a finished job stays queryable
	RetainFor time.Duration
}

// Service runs one analysis goroutine per job. Jobs live in memory only.
type Service struct {
	opts          Options
	opener        media.FileOpener
	detector      detection.Detector
	alerts        AlertDispatcher
	hub           *events.Hub
	alertsEnabled func() bool
	logger        zerolog.Logger
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*models.UploadJob
}

func NewService(opts Options, opener media.FileOpener, detector detection.Detector, alerts AlertDispatcher, hub *events.Hub, alertsEnabled func() bool, logger zerolog.Logger) *Service {
	if opts.SampleFrames <= 0 {
		opts.SampleFrames = 1
	}
	if opts.RetainFor <= 0 {
		opts.RetainFor = time.Hour
	}
	if alertsEnabled == nil {
		alertsEnabled = func() bool { return false }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		opts:          opts,
		opener:        opener,
		detector:      detector,
		alerts:        alerts,
		hub:           hub,
		alertsEnabled: alertsEnabled,
		logger:        logger,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		jobs:          make(map[string]*models.UploadJob),
	}
}

// AnalyzeFile registers a job for the video at path and starts analysing it
// in the background.
func (s *Service) AnalyzeFile(path, fileName string) (models.UploadJob, error) {
	if path == "" {
		return models.UploadJob{}, fmt.Errorf("%w: file path is required", models.ErrInvalidInput)
	}
	if !s.detector.Ready() {
		return models.UploadJob{}, models.ErrDetectorNotReady
	}
	if err := s.ctx.Err(); err != nil {
		return models.UploadJob{}, fmt.Errorf("%w: upload service stopped", models.ErrSessionClosed)
	}

	job := &models.UploadJob{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Status:    models.UploadPending,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.pruneLocked()
	s.jobs[job.ID] = job
	snapshot := *job
	s.mu.Unlock()

	s.publish(snapshot)

	s.wg.Add(1)
	go s.run(job.ID, path)

	return snapshot, nil
}

// Get returns a copy of the job
func (s *Service) Get(id string) (models.UploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.UploadJob{}, fmt.Errorf("%w: upload job %q", models.ErrNotFound, id)
	}
	out := *job
	if job.Result != nil {
		r := *job.Result
		out.Result = &r
	}
	return out, nil
}

// pruneLocked drops finished jobs older than RetainFor
func (s *Service) pruneLocked() {
	cutoff := s.now().Add(-s.opts.RetainFor)
	for id, job := range s.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(id, path string) {
	defer s.wg.Done()
	logger := logging.WithJob(s.logger, id)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Recovered from panic in upload analysis")
			s.finish(id, nil, fmt.Errorf("analysis crashed"))
		}
	}()
	if s.opts.RemoveAfter {
		defer func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("path", path).Msg("Failed to remove uploaded file")
			}
		}()
	}

	s.update(id, func(j *models.UploadJob) { j.Status = models.UploadAnalyzing })

	handle, err := s.opener.OpenFile(s.ctx, path)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open uploaded video")
		s.finish(id, nil, err)
		return
	}
	defer handle.Close()

	indices := sampleIndices(handle.FrameCount(), s.opts.SampleFrames)
	var best *models.DetectionResult

	for i, idx := range indices {
		if err := s.ctx.Err(); err != nil {
			s.finish(id, nil, models.ErrSessionClosed)
			return
		}

		frame, err := handle.ReadFrameAt(idx)
		switch {
		case err != nil:
			logger.Debug().Err(err).Int("frame", idx).Msg("Failed to read sample frame")
		case analysis.IsBlank(frame):
			logger.Debug().Err(models.ErrBlankSignal).Int("frame", idx).Msg("Blank sample frame")
		default:
			res, err := s.detector.Detect(s.ctx, frame)
			if err != nil {
				logger.Warn().Err(err).Int("frame", idx).Msg("Detection failed on sample frame")
				break
			}
			if best == nil || res.PeopleCount > best.PeopleCount {
				r := res
				best = &r
			}
		}

		progress := (i + 1) * 100 / len(indices)
		s.update(id, func(j *models.UploadJob) { j.Progress = progress })
	}

	if best == nil {
		s.finish(id, nil, models.ErrBlankSignal)
		return
	}

	status := analysis.Classify(*best)

	logger.Info().
		Uint("people_count", status.PeopleCount).
		Bool("is_crowded", status.IsCrowded).
		Msg("Uploaded video analysed")

	if ev := analysis.MaybeAlert(status, s.alertsEnabled()); ev != nil && s.alerts != nil {
		ev.SessionID = id
		ev.Source = models.AlertSourceUpload
		ev.Message = "Crowd detected in uploaded video: " + ev.Message
		s.alerts.Dispatch(*ev)
	}

	s.finish(id, &status, nil)
}

// sampleIndices spreads n samples evenly over total frames
func sampleIndices(total, n int) []int {
	if total <= 0 {
		return nil
	}
	if n > total {
		n = total
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i * total / n
	}
	return out
}

func (s *Service) update(id string, fn func(*models.UploadJob)) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(job)
	snapshot := *job
	s.mu.Unlock()

	s.publish(snapshot)
}

func (s *Service) finish(id string, status *models.CrowdStatus, err error) {
	finishedAt := s.now()
	s.update(id, func(j *models.UploadJob) {
		j.Progress = 100
		j.FinishedAt = &finishedAt
		if err != nil {
			j.Status = models.UploadFailed
			j.Error = err.Error()
			return
		}
		j.Status = models.UploadDone
		j.Result = status
	})
}

func (s *Service) publish(job models.UploadJob) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(events.Event{Type: events.TypeUpload, SessionID: job.ID, Data: job})
}
