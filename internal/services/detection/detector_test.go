package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"crowdwatch-worker-go/internal/models"
)

func TestSimulatedRanges(t *testing.T) {
	tests := []struct {
		name string
		cal  Calibration
	}{
		{"live", LiveCalibration},
		{"upload", UploadCalibration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewSimulated(tt.cal, 0, 0)
			for i := 0; i < 500; i++ {
				res, err := d.Detect(context.Background(), nil)
				if err != nil {
					t.Fatalf("Detect() error = %v", err)
				}
				if res.PeopleCount < tt.cal.MinCount || res.PeopleCount > tt.cal.MaxCount {
					t.Fatalf("count %d outside [%d,%d]", res.PeopleCount, tt.cal.MinCount, tt.cal.MaxCount)
				}
				if res.Confidence < tt.cal.MinConfidence || res.Confidence > tt.cal.MaxConfidence {
					t.Fatalf("confidence %v outside [%v,%v]", res.Confidence, tt.cal.MinConfidence, tt.cal.MaxConfidence)
				}
			}
		})
	}
}

func TestSimulatedAcceptsFrame(t *testing.T) {
	d := NewSimulated(LiveCalibration, 0, 0)
	frame := &models.Frame{Width: 2, Height: 2, Channels: 3, Data: make([]byte, 12)}
	if _, err := d.Detect(context.Background(), frame); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
}

func TestSimulatedWarmup(t *testing.T) {
	d := NewSimulated(LiveCalibration, 0, time.Hour)
	if d.Ready() {
		t.Fatal("detector should not be ready during warm-up")
	}
	if _, err := d.Detect(context.Background(), nil); !errors.Is(err, models.ErrDetectorNotReady) {
		t.Fatalf("err = %v, want ErrDetectorNotReady", err)
	}

	upload := d.WithCalibration(UploadCalibration)
	if upload.Ready() {
		t.Fatal("derived detector should share the warm-up deadline")
	}
}

func TestSimulatedCancelledDuringLatency(t *testing.T) {
	d := NewSimulated(LiveCalibration, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := d.Detect(ctx, nil)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, models.ErrDetectorFailure) || !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Detect did not return after cancel")
	}
}
