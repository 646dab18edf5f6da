package browserview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/models"
)

func source(url string) models.StreamSource {
	return models.StreamSource{CanonicalURL: url, Kind: models.StreamKindHTTP, TransportMode: models.TransportFallback}
}

func TestOpenReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("<html>view</html>"))
	}))
	defer srv.Close()

	o := NewOpener(srv.Client(), 0, time.Second, zerolog.Nop())
	h, err := o.Open(context.Background(), source(srv.URL+"/video"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if h.PixelAccess() {
		t.Error("fallback view must not expose pixels")
	}
	if _, err := h.ReadFrame(); !errors.Is(err, models.ErrNoPixelAccess) {
		t.Errorf("ReadFrame() err = %v", err)
	}
}

func TestOpenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	o := NewOpener(srv.Client(), 0, time.Second, zerolog.Nop())
	if _, err := o.Open(context.Background(), source(srv.URL+"/video")); !errors.Is(err, models.ErrFallbackUnreachable) {
		t.Fatalf("err = %v, want ErrFallbackUnreachable", err)
	}
}

func TestProbeFailureReported(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	o := NewOpener(srv.Client(), 20*time.Millisecond, time.Second, zerolog.Nop())
	h, err := o.Open(context.Background(), source(srv.URL+"/video"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	healthy.Store(false)

	select {
	case err := <-h.Failures():
		if !errors.Is(err, models.ErrFallbackUnreachable) {
			t.Fatalf("failure = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no failure reported after view went down")
	}
}

func TestCloseStopsProbing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	o := NewOpener(srv.Client(), 10*time.Millisecond, time.Second, zerolog.Nop())
	h, err := o.Open(context.Background(), source(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	h.Close()
	h.Close()

	if _, ok := <-h.Failures(); ok {
		t.Fatal("failures channel should be closed without an error after Close")
	}
}
