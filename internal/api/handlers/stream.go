package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"crowdwatch-worker-go/internal/logging"
	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/publisher/mjpeg"
	"crowdwatch-worker-go/internal/services/session"
)

type StreamHandler struct {
	session *session.Session
	preview *mjpeg.Publisher
}

func NewStreamHandler(sess *session.Session, preview *mjpeg.Publisher) *StreamHandler {
	return &StreamHandler{session: sess, preview: preview}
}

type ConnectRequest struct {
	URL  string `json:"url" binding:"required" example:"192.168.1.5"`
	Kind string `json:"kind" example:"http"` // http (default) or rtsp
}

type MediaErrorRequest struct {
	Transport string `json:"transport" binding:"required" example:"primary"`
	Message   string `json:"message" example:"MEDIA_ERR_SRC_NOT_SUPPORTED"`
}

type AlertsRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type AlertsResponse struct {
	AlertsEnabled bool `json:"alerts_enabled"`
}

// Connect godoc
// @Summary Connect to a stream
// @Description Resolve the address and connect on the primary transport. Returns once the first frame arrived or the connection failed.
// @Tags stream
// @Accept json
// @Produce json
// @Param request body ConnectRequest true "Stream address"
// @Success 200 {object} models.SessionSnapshot
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /stream/connect [post]
func (h *StreamHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}
	kind := models.StreamKind(req.Kind)
	if req.Kind == "" {
		kind = models.StreamKindHTTP
	}

	if err := h.session.Connect(c.Request.Context(), req.URL, kind); err != nil {
		respondError(c, err)
		return
	}

	snap := h.session.Snapshot()
	c.Set(logging.KeySessionID, snap.SessionID)
	logging.Info(c).
		Str("state", snap.State.String()).
		Msg("Stream connected")
	c.JSON(http.StatusOK, snap)
}

// ConnectDemo godoc
// @Summary Connect to a demo camera
// @Tags stream
// @Produce json
// @Param id path string true "Demo camera ID"
// @Success 200 {object} models.SessionSnapshot
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /stream/demo/{id} [post]
func (h *StreamHandler) ConnectDemo(c *gin.Context) {
	if err := h.session.ConnectDemo(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// ListDemos godoc
// @Summary List demo cameras
// @Tags stream
// @Produce json
// @Success 200 {array} models.DemoStream
// @Router /stream/demos [get]
func (h *StreamHandler) ListDemos(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Demos())
}

// Disconnect godoc
// @Summary Disconnect the current stream
// @Description Always succeeds, including when nothing is connected
// @Tags stream
// @Produce json
// @Success 200 {object} models.SessionSnapshot
// @Router /stream/disconnect [post]
func (h *StreamHandler) Disconnect(c *gin.Context) {
	h.session.Disconnect()
	logging.Info(c).Msg("Stream disconnected")
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// Status godoc
// @Summary Current session snapshot
// @Tags stream
// @Produce json
// @Success 200 {object} models.SessionSnapshot
// @Router /stream/status [get]
func (h *StreamHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// ReportMediaError godoc
// @Summary Report a playback failure seen by the browser
// @Tags stream
// @Accept json
// @Produce json
// @Param request body MediaErrorRequest true "Failed transport"
// @Success 200 {object} models.SessionSnapshot
// @Failure 400 {object} ErrorResponse
// @Router /stream/media-error [post]
func (h *StreamHandler) ReportMediaError(c *gin.Context) {
	var req MediaErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}
	if req.Message == "" {
		req.Message = "media error reported by client"
	}

	if err := h.session.ReportMediaError(models.TransportMode(req.Transport), req.Message); err != nil {
		respondError(c, err)
		return
	}
	logging.Info(c).Str("transport", req.Transport).Str("cause", req.Message).Msg("Client media error reported")
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// SetAlerts godoc
// @Summary Enable or disable crowd alerts
// @Tags stream
// @Accept json
// @Produce json
// @Param request body AlertsRequest true "Toggle"
// @Success 200 {object} AlertsResponse
// @Failure 400 {object} ErrorResponse
// @Router /stream/alerts [put]
func (h *StreamHandler) SetAlerts(c *gin.Context) {
	var req AlertsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return
	}
	h.session.SetAlertsEnabled(*req.Enabled)
	c.JSON(http.StatusOK, AlertsResponse{AlertsEnabled: h.session.AlertsEnabled()})
}

// Preview godoc
// @Summary MJPEG preview of the latest sampled frame
// @Tags stream
// @Produce multipart/x-mixed-replace
// @Router /stream/preview.mjpeg [get]
func (h *StreamHandler) Preview(c *gin.Context) {
	h.preview.StreamMJPEGHTTP(c.Writer, c.Request)
}
