package mjpeg

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"crowdwatch-worker-go/internal/models"
)

// Encoder turns a raw frame into JPEG bytes
type Encoder func(frame *models.Frame, quality int) ([]byte, error)

// Publisher keeps the latest sampled frame as JPEG and streams it to any
// number of multipart/x-mixed-replace clients.
type Publisher struct {
	quality int
	encode  Encoder

	jpegMutex  sync.RWMutex
	latestJPEG []byte

	notifyMutex sync.Mutex
	notify      map[chan struct{}]struct{}
}

func NewPublisher(quality int) *Publisher {
	return NewPublisherWithEncoder(quality, EncodeJPEG)
}

func NewPublisherWithEncoder(quality int, encode Encoder) *Publisher {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Publisher{
		quality: quality,
		encode:  encode,
		notify:  make(map[chan struct{}]struct{}),
	}
}

func (p *Publisher) PublishFrame(frame *models.Frame) error {
	if frame == nil {
		return nil
	}
	buf, err := p.encode(frame, p.quality)
	if err != nil {
		return err
	}

	p.jpegMutex.Lock()
	p.latestJPEG = buf
	p.jpegMutex.Unlock()

	p.notifyStreamers()
	return nil
}

// Clear drops the latest frame so clients fall back to the placeholder
func (p *Publisher) Clear() {
	p.jpegMutex.Lock()
	p.latestJPEG = nil
	p.jpegMutex.Unlock()
}

func (p *Publisher) latest() []byte {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	return p.latestJPEG
}

func (p *Publisher) notifyStreamers() {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	for ch := range p.notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) subscribe() (chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	p.notifyMutex.Lock()
	p.notify[ch] = struct{}{}
	p.notifyMutex.Unlock()

	return ch, func() {
		p.notifyMutex.Lock()
		delete(p.notify, ch)
		p.notifyMutex.Unlock()
	}
}

func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request) {
	boundary := "frame"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify, unsubscribe := p.subscribe()
	defer unsubscribe()

	writePart := func(jpeg []byte) bool {
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg)); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first := p.latest()
	if len(first) == 0 {
		first = placeholder()
	}
	if len(first) > 0 && !writePart(first) {
		return
	}

	keepaliveTicker := time.NewTicker(2 * time.Second)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-notify:
		case <-keepaliveTicker.C:
		}
		if buf := p.latest(); len(buf) > 0 {
			if !writePart(buf) {
				return
			}
		}
	}
}

// EncodeJPEG encodes an interleaved BGR frame with OpenCV
func EncodeJPEG(frame *models.Frame, quality int) ([]byte, error) {
	matType := gocv.MatTypeCV8UC3
	if frame.Channels == 1 {
		matType = gocv.MatTypeCV8UC1
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, matType, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func placeholder() []byte {
	mat := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
	defer mat.Close()
	mat.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})

	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&mat, "No preview available", image.Pt(20, 180), gocv.FontHersheySimplex, 1.0, textColor, 2)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, 80})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to encode preview placeholder")
		return nil
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
