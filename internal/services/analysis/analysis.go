// Package analysis holds the per-tick judgement steps: blank-frame
// filtering, crowd classification and the alert gate.
package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"crowdwatch-worker-go/internal/models"
)

const (
	// BlankLuminanceThreshold is the mean luminance (0-255) below which a frame carries no usable image
	BlankLuminanceThreshold = 10.0
	// CrowdThreshold is the people count above which a scene is crowded
	CrowdThreshold = 10
)

// MeanLuminance averages the first three channel values of every pixel and
// then averages over all pixels. Single-channel frames use the channel value.
func MeanLuminance(frame *models.Frame) float64 {
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 || frame.Channels <= 0 {
		return 0
	}

	pixels := frame.Width * frame.Height
	if len(frame.Data) < pixels*frame.Channels {
		pixels = len(frame.Data) / frame.Channels
	}
	if pixels == 0 {
		return 0
	}

	used := frame.Channels
	if used > 3 {
		used = 3
	}

	var sum uint64
	for p := 0; p < pixels; p++ {
		off := p * frame.Channels
		var px uint64
		for c := 0; c < used; c++ {
			px += uint64(frame.Data[off+c])
		}
		sum += px
	}

	return float64(sum) / float64(used) / float64(pixels)
}

// IsBlank reports whether frame should be treated as "no signal"
func IsBlank(frame *models.Frame) bool {
	return MeanLuminance(frame) < BlankLuminanceThreshold
}

// Classify turns a detector result into a CrowdStatus stamped with the wall clock
func Classify(result models.DetectionResult) models.CrowdStatus {
	return classifyAt(result, time.Now())
}

func classifyAt(result models.DetectionResult, now time.Time) models.CrowdStatus {
	return models.CrowdStatus{
		IsCrowded:   result.PeopleCount > CrowdThreshold,
		Confidence:  result.Confidence,
		PeopleCount: result.PeopleCount,
		Timestamp:   now,
	}
}

// MaybeAlert fires on every status where alerts are enabled and the scene is
// crowded. It keeps no state between calls.
func MaybeAlert(status models.CrowdStatus, alertsEnabled bool) *models.AlertEvent {
	if !alertsEnabled || !status.IsCrowded {
		return nil
	}
	return &models.AlertEvent{
		ID:          uuid.NewString(),
		PeopleCount: status.PeopleCount,
		Confidence:  status.Confidence,
		Message:     fmt.Sprintf("Crowd detected: %d people (%.0f%% confidence)", status.PeopleCount, status.Confidence*100),
		Timestamp:   status.Timestamp,
	}
}
