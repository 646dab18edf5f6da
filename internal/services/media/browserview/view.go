// Package browserview binds the fallback transport: the camera's
// browser-rendered page. The worker can confirm the view is reachable but has
// no access to its pixels.
package browserview

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/media"
)

// Opener probes fallback URLs over HTTP
type Opener struct {
	client        *http.Client
	probeInterval time.Duration
	probeTimeout  time.Duration
	logger        zerolog.Logger
}

func NewOpener(client *http.Client, probeInterval, probeTimeout time.Duration, logger zerolog.Logger) *Opener {
	if client == nil {
		client = &http.Client{}
	}
	return &Opener{
		client:        client,
		probeInterval: probeInterval,
		probeTimeout:  probeTimeout,
		logger:        logger,
	}
}

// Open succeeds once a GET on the fallback URL answers 2xx, then keeps probing
// the view at probeInterval and reports the first failed probe.
func (o *Opener) Open(ctx context.Context, src models.StreamSource) (media.Handle, error) {
	if err := o.probe(ctx, src.CanonicalURL); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFallbackUnreachable, err)
	}

	h := &viewHandle{
		failures: make(chan error, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.watch(o, src.CanonicalURL)

	o.logger.Info().Str("url", src.CanonicalURL).Msg("Fallback view reachable")
	return h, nil
}

func (o *Opener) probe(ctx context.Context, url string) error {
	if o.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.probeTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// MJPEG views never end; read a little and hang up.
	io.CopyN(io.Discard, resp.Body, 512)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("fallback view answered %s", resp.Status)
	}
	return nil
}

type viewHandle struct {
	failures  chan error
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (h *viewHandle) watch(o *Opener, url string) {
	defer close(h.done)
	defer close(h.failures)

	if o.probeInterval <= 0 {
		<-h.stop
		return
	}

	ticker := time.NewTicker(o.probeInterval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-h.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			if err := o.probe(ctx, url); err != nil {
				if ctx.Err() != nil {
					return
				}
				o.logger.Warn().Err(err).Str("url", url).Msg("Fallback view probe failed")
				h.failures <- fmt.Errorf("%w: %w", models.ErrFallbackUnreachable, err)
				return
			}
		}
	}
}

func (h *viewHandle) ReadFrame() (*models.Frame, error) {
	return nil, models.ErrNoPixelAccess
}

func (h *viewHandle) PixelAccess() bool { return false }

func (h *viewHandle) Failures() <-chan error { return h.failures }

func (h *viewHandle) Close() error {
	h.closeOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
	return nil
}
