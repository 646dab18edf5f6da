package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"crowdwatch-worker-go/internal/config"
	"crowdwatch-worker-go/internal/logging"
	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/alerts"
	"crowdwatch-worker-go/internal/services/detection"
	"crowdwatch-worker-go/internal/services/events"
	"crowdwatch-worker-go/internal/services/media/browserview"
	"crowdwatch-worker-go/internal/services/media/opencv"
	"crowdwatch-worker-go/internal/services/messaging"
	"crowdwatch-worker-go/internal/services/publisher/mjpeg"
	"crowdwatch-worker-go/internal/services/session"
	"crowdwatch-worker-go/internal/services/upload"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config       *config.Config
	DetectionSvc *detection.Service // nil with the simulated backend
	Messaging    *messaging.Service // nil when NATS is disabled or unreachable
	Hub          *events.Hub
	Alerts       *alerts.Dispatcher
	Preview      *mjpeg.Publisher
	Session      *session.Session
	Uploads      *upload.Service
}

// NewServiceContainer creates a new service container
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	sc := &ServiceContainer{Config: cfg}

	liveDetector, uploadDetector, err := sc.newDetectors()
	if err != nil {
		return nil, err
	}

	demos := config.DefaultDemoStreams()
	if cfg.DemoStreamsFile != "" {
		demos, err = config.LoadDemoStreams(cfg.DemoStreamsFile)
		if err != nil {
			sc.shutdownDetector()
			return nil, err
		}
	}

	// NATS is optional: alerts still reach browser subscribers without it
	var publisher models.MessagePublisher
	if cfg.NatsEnabled {
		msgSvc, err := messaging.NewService(cfg)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("NATS unavailable, alerts stay local")
		} else {
			sc.Messaging = msgSvc
			publisher = msgSvc
		}
	}

	sc.Hub = events.NewHub(64)
	sc.Alerts = alerts.NewDispatcher(publisher, sc.Hub, cfg.AlertsSubject, cfg.StateSubject, cfg.AlertsCooldown,
		logging.NewServiceLogger(cfg, "alerts"))
	sc.Preview = mjpeg.NewPublisher(cfg.PreviewJPEGQuality)

	sc.Session = session.New(session.Options{
		PreviewInterval:  cfg.PreviewInterval,
		AnalysisInterval: cfg.AnalysisInterval,
		SettleDelay:      cfg.SettleDelay,
		ConnectTimeout:   cfg.ConnectTimeout,
		AlertsEnabled:    cfg.AlertsEnabled,
	}, session.Deps{
		Primary:  opencv.NewCaptureOpener(cfg, logging.NewServiceLogger(cfg, "capture")),
		Fallback: browserview.NewOpener(&http.Client{}, cfg.FallbackProbeInterval, cfg.FallbackProbeTimeout, logging.NewServiceLogger(cfg, "browserview")),
		Detector: liveDetector,
		Alerts:   sc.Alerts,
		Hub:      sc.Hub,
		Preview:  sc.Preview,
		Demos:    demos,
	}, logging.NewServiceLogger(cfg, "session"))

	sc.Uploads = upload.NewService(upload.Options{
		SampleFrames: cfg.UploadSampleFrames,
		RemoveAfter:  true,
		RetainFor:    cfg.UploadRetention,
	}, opencv.NewFileOpener(), uploadDetector, sc.Alerts, sc.Hub, sc.Session.AlertsEnabled,
		logging.NewServiceLogger(cfg, "upload"))

	return sc, nil
}

func (sc *ServiceContainer) newDetectors() (live, uploads detection.Detector, err error) {
	cfg := sc.Config
	switch cfg.DetectorBackend {
	case "grpc":
		svc, err := detection.NewService(cfg.DetectorGRPCURL, cfg.DetectorMethod, cfg.DetectorTimeout, cfg.DetectorHealthInterval)
		if err != nil {
			return nil, nil, err
		}
		sc.DetectionSvc = svc
		return svc, svc, nil
	case "simulated", "":
		sim := detection.NewSimulated(detection.LiveCalibration, cfg.DetectorLatency, cfg.DetectorWarmup)
		return sim, sim.WithCalibration(detection.UploadCalibration), nil
	default:
		return nil, nil, errors.New("unknown detector backend: " + cfg.DetectorBackend)
	}
}

func (sc *ServiceContainer) shutdownDetector() {
	if sc.DetectionSvc != nil {
		if err := sc.DetectionSvc.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Detector shutdown failed")
		}
	}
}

// NatsConnected reports whether alerts are reaching the message bus
func (sc *ServiceContainer) NatsConnected() bool {
	return sc.Messaging.IsConnected()
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.Session != nil {
		if err := sc.Session.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if sc.Uploads != nil {
		if err := sc.Uploads.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if sc.Hub != nil {
		sc.Hub.Close()
	}
	if sc.Messaging != nil {
		if err := sc.Messaging.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	sc.shutdownDetector()

	return errors.Join(errs...)
}
