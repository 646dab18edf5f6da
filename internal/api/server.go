package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"crowdwatch-worker-go/internal/api/handlers"
	"crowdwatch-worker-go/internal/api/middleware"
	"crowdwatch-worker-go/internal/config"
	"crowdwatch-worker-go/internal/services"
)

type Server struct {
	config    *config.Config
	container *services.ServiceContainer
	router    *gin.Engine
	server    *http.Server

	healthHandler *handlers.HealthHandler
	systemHandler *handlers.SystemHandler
	streamHandler *handlers.StreamHandler
	eventsHandler *handlers.EventsHandler
	uploadHandler *handlers.UploadHandler
}

func NewServer(cfg *config.Config, container *services.ServiceContainer) (*Server, error) {
	if container == nil || container.Session == nil {
		return nil, fmt.Errorf("service container is not initialised")
	}
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:    cfg,
		container: container,
		router:    gin.New(),
		healthHandler: handlers.NewHealthHandler(cfg.WorkerID, cfg.Version,
			container.Session.DetectorReady, container.NatsConnected),
		systemHandler: handlers.NewSystemHandler(cfg.WorkerID, container.Session.Snapshot, container.Hub.Subscribers),
		streamHandler: handlers.NewStreamHandler(container.Session, container.Preview),
		eventsHandler: handlers.NewEventsHandler(container.Hub),
		uploadHandler: handlers.NewUploadHandler(container.Uploads, cfg.UploadDir, cfg.UploadMaxBytes),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Msg("Starting CrowdWatch Worker API")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then shuts down the services
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping CrowdWatch Worker API")
	httpErr := s.server.Shutdown(ctx)
	if err := s.container.Shutdown(ctx); err != nil {
		return err
	}
	return httpErr
}
