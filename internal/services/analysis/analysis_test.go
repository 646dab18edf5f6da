package analysis

import (
	"testing"
	"time"

	"crowdwatch-worker-go/internal/models"
)

func solidFrame(w, h, channels int, value byte) *models.Frame {
	data := make([]byte, w*h*channels)
	for i := range data {
		data[i] = value
	}
	return &models.Frame{Width: w, Height: h, Channels: channels, Data: data}
}

func TestMeanLuminance(t *testing.T) {
	tests := []struct {
		name  string
		frame *models.Frame
		want  float64
	}{
		{"nil", nil, 0},
		{"black", solidFrame(4, 4, 3, 0), 0},
		{"luminance 5", solidFrame(8, 6, 3, 5), 5},
		{"white", solidFrame(2, 2, 3, 255), 255},
		{"gray single channel", solidFrame(3, 3, 1, 40), 40},
		{"alpha ignored", &models.Frame{Width: 1, Height: 1, Channels: 4, Data: []byte{30, 60, 90, 255}}, 60},
		{"mixed pixels", &models.Frame{Width: 2, Height: 1, Channels: 3, Data: []byte{0, 0, 0, 30, 30, 30}}, 15},
		{"short buffer", &models.Frame{Width: 10, Height: 10, Channels: 3, Data: []byte{9, 9, 9}}, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MeanLuminance(tt.frame); got != tt.want {
				t.Errorf("MeanLuminance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank(solidFrame(4, 4, 3, 5)) {
		t.Error("luminance 5 should be blank")
	}
	if !IsBlank(solidFrame(4, 4, 3, 9)) {
		t.Error("luminance 9 should be blank")
	}
	if IsBlank(solidFrame(4, 4, 3, 10)) {
		t.Error("luminance 10 should not be blank")
	}
}

func TestClassifyThreshold(t *testing.T) {
	for count := uint(0); count <= 1000; count++ {
		status := Classify(models.DetectionResult{PeopleCount: count, Confidence: 0.8})
		if status.IsCrowded != (count > 10) {
			t.Fatalf("count %d: IsCrowded = %v", count, status.IsCrowded)
		}
	}

	if Classify(models.DetectionResult{PeopleCount: 10}).IsCrowded {
		t.Error("10 people must not be crowded")
	}
	if !Classify(models.DetectionResult{PeopleCount: 11}).IsCrowded {
		t.Error("11 people must be crowded")
	}
}

func TestClassifyCopiesResult(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	status := classifyAt(models.DetectionResult{PeopleCount: 23, Confidence: 0.91}, now)

	if status.PeopleCount != 23 || status.Confidence != 0.91 || !status.Timestamp.Equal(now) {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestMaybeAlert(t *testing.T) {
	tests := []struct {
		enabled bool
		crowded bool
		fires   bool
	}{
		{false, false, false},
		{false, true, false},
		{true, false, false},
		{true, true, true},
	}

	for _, tt := range tests {
		status := models.CrowdStatus{IsCrowded: tt.crowded, PeopleCount: 20, Confidence: 0.8}
		ev := MaybeAlert(status, tt.enabled)
		if (ev != nil) != tt.fires {
			t.Errorf("enabled=%v crowded=%v: fired=%v, want %v", tt.enabled, tt.crowded, ev != nil, tt.fires)
		}
		if ev != nil && (ev.ID == "" || ev.PeopleCount != 20) {
			t.Errorf("unexpected event: %+v", ev)
		}
	}
}

func TestMaybeAlertLevelTriggered(t *testing.T) {
	status := models.CrowdStatus{IsCrowded: true, PeopleCount: 15, Confidence: 0.75}
	first := MaybeAlert(status, true)
	second := MaybeAlert(status, true)
	if first == nil || second == nil {
		t.Fatal("gate must fire on every qualifying call")
	}
	if first.ID == second.ID {
		t.Error("each alert needs its own id")
	}
}
