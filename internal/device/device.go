// Package device abstracts the platform resources the completion flow
// acquires: location watches, camera streams, frame callbacks and timers.
// Every acquisition has a matching release that callers must run on all
// exit paths.
package device

import (
	"context"
	"errors"
	"image"

	"github.com/campusquest/companion/internal/campus"
)

var (
	ErrLocationDenied      = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrCameraDenied        = errors.New("camera permission denied")
	ErrCameraUnavailable   = errors.New("camera unavailable")
)

type WatchID uint64

// Locator mirrors a platform position watch. Callbacks may run on any
// goroutine; they stop once ClearWatch returns.
type Locator interface {
	WatchPosition(onFix func(campus.LocationSample), onError func(error)) (WatchID, error)
	ClearWatch(id WatchID)
}

// Resetter is implemented by devices that hold reported errors between
// acquisitions. Reset drops them.
type Resetter interface {
	Reset()
}

// Camera hands out live media streams.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired camera stream. Stop releases every track and is
// safe to call more than once.
type Stream interface {
	// Ready blocks until the stream reports its frame dimensions.
	Ready(ctx context.Context) (width, height int, err error)
	// Frame returns the most recent frame, or false before the first one.
	Frame() (image.Image, bool)
	Stop()
}

type FrameID uint64

// FrameClock schedules work on the display refresh cadence.
type FrameClock interface {
	RequestFrame(fn func()) FrameID
	CancelFrame(id FrameID)
}
