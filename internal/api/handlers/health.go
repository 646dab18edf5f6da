package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	WorkerID string
	Version  string

	detectorReady func() bool
	natsConnected func() bool
}

func NewHealthHandler(workerID, version string, detectorReady, natsConnected func() bool) *HealthHandler {
	return &HealthHandler{
		WorkerID:      workerID,
		Version:       version,
		detectorReady: detectorReady,
		natsConnected: natsConnected,
	}
}

type HealthResponse struct {
	Status        string `json:"status" example:"healthy"`
	WorkerID      string `json:"worker_id" example:"crowdwatch-1"`
	DetectorReady bool   `json:"detector_ready"`
	NatsConnected bool   `json:"nats_connected"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"crowdwatch-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Report worker health, detector readiness and message bus connectivity
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:   "healthy",
		WorkerID: h.WorkerID,
	}
	if h.detectorReady != nil {
		resp.DetectorReady = h.detectorReady()
	}
	if h.natsConnected != nil {
		resp.NatsConnected = h.natsConnected()
	}
	if !resp.DetectorReady {
		resp.Status = "warming_up"
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary Worker information
// @Description Get basic worker information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"stream_monitoring",
			"crowd_detection",
			"video_upload_analysis",
			"nats_alerts",
		},
	})
}
