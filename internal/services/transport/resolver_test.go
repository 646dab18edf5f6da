package transport

import (
	"strings"
	"testing"

	"crowdwatch-worker-go/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind models.StreamKind
		want string
	}{
		{"bare host", "http://192.168.1.5:8080", models.StreamKindHTTP, "http://192.168.1.5:8080/videofeed"},
		{"trailing slashes", "http://192.168.1.5:8080///", models.StreamKindHTTP, "http://192.168.1.5:8080/videofeed"},
		{"already feed", "http://cam.local/videofeed", models.StreamKindHTTP, "http://cam.local/videofeed"},
		{"mjpeg", "http://cam.local/video.mjpeg", models.StreamKindHTTP, "http://cam.local/video.mjpeg"},
		{"browser view", "http://cam.local/video", models.StreamKindHTTP, "http://cam.local/videofeed"},
		{"browser view slash", "http://cam.local/video/", models.StreamKindHTTP, "http://cam.local/videofeed"},
		{"marker mid path", "http://cam.local/video/stream", models.StreamKindHTTP, "http://cam.local/video/stream"},
		{"other path", "http://cam.local/live", models.StreamKindHTTP, "http://cam.local/live/videofeed"},
		{"rtsp passthrough", "rtsp://cam.local:554/stream/", models.StreamKindRTSP, "rtsp://cam.local:554/stream/"},
		{"malformed passthrough", "not a url", models.StreamKindHTTP, "not a url/videofeed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw, tt.kind); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeAppendsFeedExactlyOnce(t *testing.T) {
	hosts := []string{"http://a", "http://10.0.0.1:81", "https://cam.example.com/live", "http://x/y/z/"}
	for _, h := range hosts {
		got := Normalize(h, models.StreamKindHTTP)
		if strings.Count(got, "/videofeed") != 1 || !strings.HasSuffix(got, "/videofeed") {
			t.Errorf("Normalize(%q) = %q", h, got)
		}
	}
}

func TestDeriveFallback(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://192.168.1.5:8080/videofeed", "http://192.168.1.5:8080/video"},
		{"http://cam.local/video.mjpeg", "http://cam.local/video"},
		{"http://cam.local/video", "http://cam.local/video"},
		{"http://cam.local/live", "http://cam.local/live/video"},
		{"http://cam.local/live/", "http://cam.local/live/video"},
	}

	for _, tt := range tests {
		got := DeriveFallback(tt.in)
		if got != tt.want {
			t.Errorf("DeriveFallback(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := DeriveFallback(got); again != got {
			t.Errorf("DeriveFallback not idempotent for %q: %q then %q", tt.in, got, again)
		}
	}
}

func TestViewURLRoundTrip(t *testing.T) {
	canonical := Normalize("http://cam.local:8080/video", models.StreamKindHTTP)
	if !strings.HasSuffix(canonical, "/videofeed") {
		t.Fatalf("canonical = %q", canonical)
	}
	if fb := DeriveFallback(canonical); !strings.HasSuffix(fb, "/video") {
		t.Fatalf("fallback = %q", fb)
	}
}

func TestFallbackSwitchesOnce(t *testing.T) {
	src := Resolve("http://192.168.1.5:8080", models.StreamKindHTTP)
	if src.TransportMode != models.TransportPrimary {
		t.Fatalf("mode = %s", src.TransportMode)
	}

	fb := Fallback(src)
	if fb.TransportMode != models.TransportFallback || fb.CanonicalURL != "http://192.168.1.5:8080/video" {
		t.Fatalf("fallback source = %+v", fb)
	}
	if again := Fallback(fb); again != fb {
		t.Fatalf("second fallback changed source: %+v", again)
	}
	if fb.RawURL != src.RawURL {
		t.Errorf("raw url changed: %q", fb.RawURL)
	}
}
