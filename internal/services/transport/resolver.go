// Package transport turns user-entered stream addresses into playable
// endpoints and derives the browser-view fallback endpoint.
//
// Everything here is pure string manipulation: no network I/O happens and no
// errors are returned. Malformed input passes through syntactically unchanged
// and is rejected later by the media layer when playback fails.
package transport

import (
	"strings"

	"crowdwatch-worker-go/internal/models"
)

const (
	feedSuffix  = "/videofeed"
	mjpegSuffix = "/video.mjpeg"
	viewSuffix  = "/video"
)

// Normalize returns the canonical primary-transport URL for rawURL.
func Normalize(rawURL string, kind models.StreamKind) string {
	if kind == models.StreamKindRTSP {
		return rawURL
	}

	u := strings.TrimRight(rawURL, "/")
	if !strings.Contains(u, feedSuffix) && !strings.Contains(u, mjpegSuffix) && !strings.Contains(u, viewSuffix) {
		return u + feedSuffix
	}
	if strings.HasSuffix(u, viewSuffix) {
		return strings.TrimSuffix(u, viewSuffix) + feedSuffix
	}
	return u
}

// DeriveFallback rewrites a canonical feed URL to the browser-view endpoint.
// DeriveFallback(DeriveFallback(x)) == DeriveFallback(x).
func DeriveFallback(canonicalURL string) string {
	u := strings.TrimRight(canonicalURL, "/")
	switch {
	case strings.HasSuffix(u, feedSuffix):
		return strings.TrimSuffix(u, feedSuffix) + viewSuffix
	case strings.HasSuffix(u, mjpegSuffix):
		return strings.TrimSuffix(u, mjpegSuffix) + viewSuffix
	case strings.HasSuffix(u, viewSuffix):
		return u
	default:
		return u + viewSuffix
	}
}

// HasFallback reports whether a browser-view fallback exists for kind.
// RTSP has no browser-native view.
func HasFallback(kind models.StreamKind) bool {
	return kind == models.StreamKindHTTP
}

// Resolve builds the StreamSource for a fresh connect.
func Resolve(rawURL string, kind models.StreamKind) models.StreamSource {
	return models.StreamSource{
		RawURL:        rawURL,
		Kind:          kind,
		CanonicalURL:  Normalize(rawURL, kind),
		TransportMode: models.TransportPrimary,
	}
}

// Fallback returns src switched to the fallback transport. A source already
// in fallback mode is returned unchanged.
func Fallback(src models.StreamSource) models.StreamSource {
	if src.TransportMode == models.TransportFallback {
		return src
	}
	src.CanonicalURL = DeriveFallback(src.CanonicalURL)
	src.TransportMode = models.TransportFallback
	return src
}
