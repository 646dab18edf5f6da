package opencv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/media"
)

// FileOpener binds local video files for upload analysis
type FileOpener struct{}

func NewFileOpener() *FileOpener {
	ffmpegOnce.Do(configureFFmpegOptions)
	return &FileOpener{}
}

func (FileOpener) OpenFile(ctx context.Context, path string) (media.FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open video file: %w", models.ErrInvalidInput, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: video file %s could not be decoded", models.ErrInvalidInput, path)
	}

	count := int(capture.Get(gocv.VideoCaptureFrameCount))
	if count <= 0 {
		capture.Close()
		return nil, fmt.Errorf("%w: video file %s has no frames", models.ErrInvalidInput, path)
	}

	return &fileHandle{capture: capture, frames: count}, nil
}

type fileHandle struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	frames  int
}

func (h *fileHandle) FrameCount() int { return h.frames }

func (h *fileHandle) ReadFrameAt(index int) (*models.Frame, error) {
	if index < 0 || index >= h.frames {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", index, h.frames)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.capture.Set(gocv.VideoCapturePosFrames, float64(index))

	img := gocv.NewMat()
	defer img.Close()
	if ok := h.capture.Read(&img); !ok || img.Empty() {
		return nil, fmt.Errorf("failed to read frame %d", index)
	}

	return &models.Frame{
		Seq:       uint64(index),
		Width:     img.Cols(),
		Height:    img.Rows(),
		Channels:  img.Channels(),
		Data:      img.ToBytes(),
		Timestamp: time.Now(),
	}, nil
}

func (h *fileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capture.Close()
}
