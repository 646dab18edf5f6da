package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"crowdwatch-worker-go/internal/models"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID  string
	startTime time.Time

	snapshot    func() models.SessionSnapshot
	subscribers func() int
}

func NewSystemHandler(workerID string, snapshot func() models.SessionSnapshot, subscribers func() int) *SystemHandler {
	return &SystemHandler{
		WorkerID:    workerID,
		startTime:   time.Now(),
		snapshot:    snapshot,
		subscribers: subscribers,
	}
}

// @Summary Get system stats
// @Description Runtime statistics plus the current session phase
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"worker_id":      h.WorkerID,
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"memory_mb":      m.Alloc / 1024 / 1024,
		"cpu_cores":      runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
	}
	if h.snapshot != nil {
		snap := h.snapshot()
		stats["session_phase"] = snap.State.Phase
		stats["session_id"] = snap.SessionID
	}
	if h.subscribers != nil {
		stats["event_subscribers"] = h.subscribers()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}
