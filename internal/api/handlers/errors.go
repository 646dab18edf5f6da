package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crowdwatch-worker-go/internal/logging"
	"crowdwatch-worker-go/internal/models"
)

type ErrorResponse struct {
	Error string `json:"error" example:"stream url is required"`
}

type SuccessResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyConnected), errors.Is(err, models.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, models.ErrDetectorNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrTransportUnreachable), errors.Is(err, models.ErrFallbackUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error(c).Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Request failed")
	} else {
		logging.Warn(c).Err(err).Int("status", status).Str("path", c.Request.URL.Path).Msg("Request rejected")
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
