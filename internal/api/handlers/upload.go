package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crowdwatch-worker-go/internal/logging"
	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/upload"
)

type UploadHandler struct {
	uploads  *upload.Service
	dir      string
	maxBytes int64
}

func NewUploadHandler(uploads *upload.Service, dir string, maxBytes int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, dir: dir, maxBytes: maxBytes}
}

// Create godoc
// @Summary Analyse an uploaded video
// @Description Store the file and start a background crowd analysis job
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Video file"
// @Success 202 {object} models.UploadJob
// @Failure 400 {object} ErrorResponse "missing file or not a video/* upload"
// @Failure 413 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /uploads [post]
func (h *UploadHandler) Create(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: fmt.Sprintf("file exceeds %d bytes", h.maxBytes)})
			return
		}
		respondError(c, fmt.Errorf("%w: multipart field \"file\" is required", models.ErrInvalidInput))
		return
	}

	if ct := file.Header.Get("Content-Type"); !strings.HasPrefix(ct, "video/") {
		respondError(c, fmt.Errorf("%w: %q is not a video file", models.ErrInvalidInput, ct))
		return
	}

	dst := filepath.Join(h.dir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		respondError(c, fmt.Errorf("failed to store upload: %w", err))
		return
	}

	job, err := h.uploads.AnalyzeFile(dst, file.Filename)
	if err != nil {
		_ = os.Remove(dst)
		respondError(c, err)
		return
	}

	logging.Info(c).
		Str("job_id", job.ID).
		Str("file_name", file.Filename).
		Int64("size", file.Size).
		Msg("Upload accepted")
	c.JSON(http.StatusAccepted, job)
}

// Get godoc
// @Summary Upload job progress and result
// @Tags uploads
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.UploadJob
// @Failure 404 {object} ErrorResponse
// @Router /uploads/{id} [get]
func (h *UploadHandler) Get(c *gin.Context) {
	job, err := h.uploads.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
