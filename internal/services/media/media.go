// Package media defines the handles the session binds to a stream source.
package media

import (
	"context"

	"crowdwatch-worker-go/internal/models"
)

// Handle is an open media binding. Failures delivers transport errors that
// occur after a successful open; it is closed when the handle is closed.
type Handle interface {
	// ReadFrame returns the most recent decoded frame. Handles without pixel
	// access return models.ErrNoPixelAccess.
	ReadFrame() (*models.Frame, error)
	PixelAccess() bool
	Failures() <-chan error
	Close() error
}

// Opener binds a handle for src. Open blocks until the first frame is
// available (or the view is confirmed reachable) or ctx is done.
type Opener interface {
	Open(ctx context.Context, src models.StreamSource) (Handle, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(ctx context.Context, src models.StreamSource) (Handle, error)

func (f OpenerFunc) Open(ctx context.Context, src models.StreamSource) (Handle, error) {
	return f(ctx, src)
}

// FileOpener binds a local video file for upload analysis
type FileOpener interface {
	OpenFile(ctx context.Context, path string) (FileHandle, error)
}

// FileHandle reads frames from a finite video file
type FileHandle interface {
	FrameCount() int
	// ReadFrameAt returns the frame at index, 0 <= index < FrameCount()
	ReadFrameAt(index int) (*models.Frame, error)
	Close() error
}
