package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"crowdwatch-worker-go/internal/models"
)

// Service is a Detector backed by a remote inference server. Frames travel as
// a google.protobuf.Struct so the server contract needs no generated stubs.
type Service struct {
	grpcURL string
	method  string
	timeout time.Duration
	opts    []grpc.DialOption

	mu        sync.RWMutex
	conn      *grpc.ClientConn
	health    healthpb.HealthClient
	isHealthy bool

	stopHealth chan struct{}
	healthDone chan struct{}
	stopOnce   sync.Once
}

// NewService dials the detector and keeps probing its health every
// healthInterval, reconnecting while it is unreachable.
func NewService(grpcURL, method string, timeout, healthInterval time.Duration, opts ...grpc.DialOption) (*Service, error) {
	log.Info().Str("url", grpcURL).Str("method", method).Msg("Initializing crowd detection service")

	if grpcURL == "" {
		return nil, fmt.Errorf("%w: detector gRPC url is empty", models.ErrInvalidInput)
	}

	service := &Service{
		grpcURL: grpcURL,
		method:  method,
		timeout: timeout,
		opts:    append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),

		stopHealth: make(chan struct{}),
		healthDone: make(chan struct{}),
	}

	// Try to connect, but don't fail if it's not available
	if err := service.connect(); err != nil {
		log.Warn().Err(err).Msg("Crowd detection service not available, will retry later")
	}

	if healthInterval <= 0 {
		healthInterval = 5 * time.Second
	}
	go service.healthLoop(healthInterval)

	return service, nil
}

// healthLoop re-checks the detector on a ticker so readiness recovers
// without waiting for a Detect call.
func (s *Service) healthLoop(interval time.Duration) {
	defer close(s.healthDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopHealth:
			return
		case <-ticker.C:
			wasReady := s.Ready()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := s.HealthCheck(ctx)
			cancel()

			switch {
			case err != nil && wasReady:
				log.Warn().Err(err).Msg("Crowd detection service became unhealthy")
			case err != nil:
				log.Debug().Err(err).Msg("Crowd detection service still unavailable")
			case !wasReady:
				log.Info().Msg("Crowd detection service recovered")
			}
		}
	}
}

func (s *Service) connect() error {
	conn, err := grpc.NewClient(s.grpcURL, s.opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to detection service: %w", err)
	}

	health := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("detection service health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		conn.Close()
		return fmt.Errorf("detection service not serving: %s", resp.GetStatus())
	}

	// Swap under the lock only, so Ready never waits on a dial
	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.health = health
	s.isHealthy = true
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}

	log.Info().Msg("Successfully connected to crowd detection service")
	return nil
}

func (s *Service) ensureConnection() error {
	s.mu.RLock()
	ok := s.isHealthy && s.conn != nil
	s.mu.RUnlock()
	if ok {
		return nil
	}

	return s.connect()
}

// Ready reports whether the last health check succeeded
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHealthy
}

func (s *Service) Detect(ctx context.Context, frame *models.Frame) (models.DetectionResult, error) {
	if err := s.ensureConnection(); err != nil {
		return models.DetectionResult{}, fmt.Errorf("%w: detection service unavailable: %w", models.ErrDetectorFailure, err)
	}

	req, err := EncodeFrame(frame)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("%w: %w", models.ErrDetectorFailure, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	resp := &structpb.Struct{}
	if err := conn.Invoke(ctx, s.method, req, resp); err != nil {
		s.mu.Lock()
		s.isHealthy = false
		s.mu.Unlock()
		return models.DetectionResult{}, fmt.Errorf("%w: %w", models.ErrDetectorFailure, err)
	}
	log.Debug().Msgf("Detection response: %v", resp)

	result, err := DecodeResult(resp)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("%w: %w", models.ErrDetectorFailure, err)
	}
	return result, nil
}

// EncodeFrame builds the request payload. A nil frame is sent as degraded.
func EncodeFrame(frame *models.Frame) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"degraded": frame == nil,
	}
	if frame != nil {
		fields["seq"] = float64(frame.Seq)
		fields["width"] = float64(frame.Width)
		fields["height"] = float64(frame.Height)
		fields["channels"] = float64(frame.Channels)
		fields["format"] = "BGR24"
		fields["data"] = base64.StdEncoding.EncodeToString(frame.Data)
	}
	return structpb.NewStruct(fields)
}

// DecodeResult reads people_count and confidence from a response payload
func DecodeResult(resp *structpb.Struct) (models.DetectionResult, error) {
	fields := resp.GetFields()

	countVal, ok := fields["people_count"]
	if !ok {
		return models.DetectionResult{}, fmt.Errorf("response missing people_count")
	}
	count := countVal.GetNumberValue()
	if count < 0 || math.IsNaN(count) {
		return models.DetectionResult{}, fmt.Errorf("invalid people_count %v", count)
	}

	confidence := fields["confidence"].GetNumberValue()
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return models.DetectionResult{}, fmt.Errorf("confidence %v out of range", confidence)
	}

	return models.DetectionResult{PeopleCount: uint(count), Confidence: confidence}, nil
}

// HealthCheck probes the remote health service, reconnecting first when the
// last probe or detection failed.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.ensureConnection(); err != nil {
		return err
	}

	s.mu.RLock()
	health := s.health
	s.mu.RUnlock()

	resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err == nil && resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		err = fmt.Errorf("detection service not serving: %s", resp.GetStatus())
	}
	if err != nil {
		s.mu.Lock()
		s.isHealthy = false
		s.mu.Unlock()
	}
	return err
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopHealth) })
	select {
	case <-s.healthDone:
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		log.Info().Msg("Shutting down detection service connection")
		err := s.conn.Close()
		s.conn = nil
		s.isHealthy = false
		return err
	}
	return nil
}
