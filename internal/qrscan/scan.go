// Package qrscan reads QR codes from a live camera stream, one decode
// attempt per display frame.
package qrscan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
)

var ErrScanTimeout = errors.New("no QR code detected before timeout")

type Scanner struct {
	cam     device.Camera
	frames  device.FrameClock
	timers  *device.Timers
	decoder Decoder
}

func NewScanner(cam device.Camera, frames device.FrameClock, timers *device.Timers, dec Decoder) *Scanner {
	if dec == nil {
		dec = ZXing{TryHarder: true}
	}
	if timers == nil {
		timers = device.NewTimers(nil)
	}
	return &Scanner{cam: cam, frames: frames, timers: timers, decoder: dec}
}

// Scan acquires the camera and tries to decode the current frame on every
// frame tick until a code is found, period elapses, or ctx is done. When
// overlay is non-nil the detection box is drawn on it. The stream, the
// pending frame request and the timer are released before Scan returns.
func (s *Scanner) Scan(ctx context.Context, overlay Overlay, period time.Duration) (campus.ScanResult, error) {
	stream, err := s.cam.Open(ctx)
	if err != nil {
		return campus.ScanResult{}, fmt.Errorf("opening camera: %w", err)
	}
	defer stream.Stop()

	expired := make(chan struct{})
	stopTimer := s.timers.AfterFunc(period, func() { close(expired) })
	defer stopTimer()

	found := make(chan campus.ScanResult, 1)
	loop := &frameLoop{
		frames:  s.frames,
		stream:  stream,
		decoder: s.decoder,
		overlay: overlay,
		found:   found,
	}
	loop.start()
	defer loop.stop()

	select {
	case <-ctx.Done():
		return campus.ScanResult{}, ctx.Err()
	case <-expired:
		return campus.ScanResult{}, ErrScanTimeout
	case res := <-found:
		return res, nil
	}
}

// ScanFunc runs Scan and passes the result to fn; nil means no code.
func (s *Scanner) ScanFunc(ctx context.Context, overlay Overlay, period time.Duration, fn func(*campus.ScanResult, error)) {
	res, err := s.Scan(ctx, overlay, period)
	if err != nil {
		fn(nil, err)
		return
	}
	fn(&res, nil)
}

// frameLoop re-arms itself on the frame clock until a code is found or it
// is stopped. mu is held for a whole tick so stop waits out an in-flight
// decode.
type frameLoop struct {
	frames  device.FrameClock
	stream  device.Stream
	decoder Decoder
	overlay Overlay
	found   chan<- campus.ScanResult

	mu        sync.Mutex
	stopped   bool
	pending   bool
	id        device.FrameID
	offscreen *image.RGBA
}

func (l *frameLoop) start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.request()
}

func (l *frameLoop) request() {
	l.id = l.frames.RequestFrame(l.tick)
	l.pending = true
}

func (l *frameLoop) tick() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.pending = false

	if frame, ok := l.stream.Frame(); ok {
		if res, ok := l.decoder.Decode(l.capture(frame)); ok {
			if l.overlay != nil {
				l.overlay.Mark(frame.Bounds(), res.Corners)
			}
			l.found <- res
			return
		}
	}
	l.request()
}

// capture copies frame into the reusable offscreen buffer.
func (l *frameLoop) capture(frame image.Image) *image.RGBA {
	b := frame.Bounds()
	if l.offscreen == nil || l.offscreen.Bounds().Size() != b.Size() {
		l.offscreen = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(l.offscreen, l.offscreen.Bounds(), frame, b.Min, draw.Src)
	return l.offscreen
}

func (l *frameLoop) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.pending {
		l.frames.CancelFrame(l.id)
		l.pending = false
	}
}
