package detection

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"crowdwatch-worker-go/internal/models"
)

// Detector counts people in a frame. A nil frame means the caller has no
// pixel access (fallback transport) and implementations must still answer.
type Detector interface {
	Detect(ctx context.Context, frame *models.Frame) (models.DetectionResult, error)
	Ready() bool
}

// Calibration bounds the values produced by the simulated detector
type Calibration struct {
	MinCount      uint
	MaxCount      uint
	MinConfidence float64
	MaxConfidence float64
}

var (
	// LiveCalibration is used for camera streams
	LiveCalibration = Calibration{MinCount: 5, MaxCount: 54, MinConfidence: 0.70, MaxConfidence: 0.95}
	// UploadCalibration is used for uploaded video files
	UploadCalibration = Calibration{MinCount: 5, MaxCount: 54, MinConfidence: 0.85, MaxConfidence: 0.90}
)

// Simulated returns pseudo-random results after an artificial inference
// latency. It reports not ready until its warm-up period has elapsed.
type Simulated struct {
	cal     Calibration
	latency time.Duration
	readyAt time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(cal Calibration, latency, warmup time.Duration) *Simulated {
	return &Simulated{
		cal:     cal,
		latency: latency,
		readyAt: time.Now().Add(warmup),
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// WithCalibration returns a detector sharing the warm-up deadline and latency
// but drawing from a different calibration.
func (s *Simulated) WithCalibration(cal Calibration) *Simulated {
	return &Simulated{
		cal:     cal,
		latency: s.latency,
		readyAt: s.readyAt,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x94d049bb133111eb)),
	}
}

func (s *Simulated) Ready() bool {
	return !time.Now().Before(s.readyAt)
}

func (s *Simulated) Detect(ctx context.Context, _ *models.Frame) (models.DetectionResult, error) {
	if !s.Ready() {
		return models.DetectionResult{}, models.ErrDetectorNotReady
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.DetectionResult{}, fmt.Errorf("%w: %w", models.ErrDetectorFailure, ctx.Err())
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	span := s.cal.MaxCount - s.cal.MinCount + 1
	count := s.cal.MinCount + uint(s.rng.UintN(span))
	confidence := s.cal.MinConfidence + s.rng.Float64()*(s.cal.MaxConfidence-s.cal.MinConfidence)

	return models.DetectionResult{PeopleCount: count, Confidence: confidence}, nil
}
