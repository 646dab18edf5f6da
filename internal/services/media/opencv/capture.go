// Package opencv binds stream and file sources through gocv's FFmpeg backend.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"crowdwatch-worker-go/internal/config"
	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/media"
)

var ffmpegOnce sync.Once

// CaptureOpener opens primary-transport handles with OpenCV VideoCapture
type CaptureOpener struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func NewCaptureOpener(cfg *config.Config, logger zerolog.Logger) *CaptureOpener {
	ffmpegOnce.Do(configureFFmpegOptions)
	return &CaptureOpener{cfg: cfg, logger: logger}
}

// Open starts the reader goroutine and waits for the first decoded frame.
// A failure before the first frame is reported as ErrTransportUnreachable.
func (o *CaptureOpener) Open(ctx context.Context, src models.StreamSource) (media.Handle, error) {
	o.logger.Info().
		Str("url", src.CanonicalURL).
		Str("kind", src.Kind.String()).
		Msg("Opening VideoCapture")

	h := &captureHandle{
		url:       src.CanonicalURL,
		width:     o.cfg.OutputWidth,
		height:    o.cfg.OutputHeight,
		maxErrors: o.cfg.MaxConsecutiveReadErrors,
		logger:    o.logger.With().Str("url", src.CanonicalURL).Logger(),
		failures:  make(chan error, 1),
		firstRead: make(chan error, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go h.run()

	select {
	case err := <-h.firstRead:
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("%w: %w", models.ErrTransportUnreachable, err)
		}
	case <-ctx.Done():
		// The reader may still be inside the FFmpeg open; it exits on its own
		// once that returns, so the connect timeout is not extended.
		h.signalStop()
		return nil, fmt.Errorf("%w: %w", models.ErrTransportUnreachable, ctx.Err())
	}

	return h, nil
}

type captureHandle struct {
	url       string
	width     int
	height    int
	maxErrors int
	logger    zerolog.Logger

	mu      sync.RWMutex
	latest  *models.Frame
	frameID uint64

	failures  chan error
	firstRead chan error
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (h *captureHandle) run() {
	defer close(h.done)
	defer close(h.failures)

	capture, err := gocv.OpenVideoCaptureWithAPI(h.url, gocv.VideoCaptureFFmpeg)
	if err != nil {
		h.firstRead <- fmt.Errorf("open %s: %w", h.url, err)
		return
	}
	defer capture.Close()

	if !capture.IsOpened() {
		h.firstRead <- fmt.Errorf("video capture is not opened for %s", h.url)
		return
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	img := gocv.NewMat()
	defer img.Close()

	started := false
	consecutiveErrors := 0

	for {
		select {
		case <-h.stop:
			h.logger.Debug().Msg("Stopping VideoCapture reader")
			return
		default:
		}

		if ok := capture.Read(&img); !ok || img.Empty() {
			consecutiveErrors++
			if !started {
				if consecutiveErrors >= h.maxErrors {
					h.firstRead <- errors.New("no frame decoded from stream")
					return
				}
			} else {
				h.logger.Warn().Int("consecutive_errors", consecutiveErrors).Msg("Failed to read frame from VideoCapture")
				if consecutiveErrors >= h.maxErrors {
					h.fail(fmt.Errorf("too many consecutive read errors (%d)", consecutiveErrors))
					return
				}
			}

			// Progressive delay based on error count
			delay := time.Duration(consecutiveErrors*50) * time.Millisecond
			if delay > 2*time.Second {
				delay = 2 * time.Second
			}
			select {
			case <-h.stop:
				return
			case <-time.After(delay):
			}
			continue
		}

		consecutiveErrors = 0
		h.store(&img)

		if !started {
			started = true
			h.firstRead <- nil
			h.logger.Info().
				Int("width", img.Cols()).
				Int("height", img.Rows()).
				Msg("VideoCapture delivered first frame")
		}
	}
}

func (h *captureHandle) store(img *gocv.Mat) {
	resized := gocv.NewMat()
	defer resized.Close()

	src := img
	if h.width > 0 && h.height > 0 && (img.Cols() != h.width || img.Rows() != h.height) {
		gocv.Resize(*img, &resized, image.Pt(h.width, h.height), 0, 0, gocv.InterpolationLinear)
		src = &resized
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameID++
	h.latest = &models.Frame{
		Seq:       h.frameID,
		Width:     src.Cols(),
		Height:    src.Rows(),
		Channels:  src.Channels(),
		Data:      src.ToBytes(),
		Timestamp: time.Now(),
	}
}

func (h *captureHandle) fail(err error) {
	select {
	case h.failures <- err:
	default:
	}
}

func (h *captureHandle) ReadFrame() (*models.Frame, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return nil, errors.New("no frame decoded yet")
	}
	f := *h.latest
	return &f, nil
}

func (h *captureHandle) PixelAccess() bool { return true }

func (h *captureHandle) Failures() <-chan error { return h.failures }

func (h *captureHandle) signalStop() {
	h.closeOnce.Do(func() {
		close(h.stop)
	})
}

func (h *captureHandle) Close() error {
	h.signalStop()
	<-h.done
	return nil
}

// configureFFmpegOptions sets low-latency FFmpeg options for the OpenCV backend
func configureFFmpegOptions() {
	ffmpegOptions := map[string]string{
		"rtsp_transport":      "tcp",
		"buffer_size":         "2097152",
		"max_delay":           "500000",
		"stimeout":            "5000000",
		"rw_timeout":          "5000000",
		"flags":               "low_delay",
		"fflags":              "nobuffer+flush_packets",
		"analyzeduration":     "500000",
		"probesize":           "2000000",
		"allowed_media_types": "video",
	}

	opts := make([]string, 0, len(ffmpegOptions))
	for key, value := range ffmpegOptions {
		opts = append(opts, key+";"+value)
	}
	sort.Strings(opts)
	joined := strings.Join(opts, "|")

	if os.Getenv("OPENCV_FFMPEG_CAPTURE_OPTIONS") == "" {
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", joined)
	}
	log.Debug().Str("ffmpeg_options", joined).Msg("FFmpeg options configured for OpenCV")
}
