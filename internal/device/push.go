package device

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/campusquest/companion/internal/campus"
)

// PushLocator is a Locator fed by fixes the UI pushes over HTTP. Callbacks
// run with delivery held, so they must not call back into the locator.
type PushLocator struct {
	deliver sync.Mutex
	mu      sync.Mutex
	next    WatchID
	watches map[WatchID]locWatch
	pending error
}

type locWatch struct {
	onFix   func(campus.LocationSample)
	onError func(error)
}

func NewPushLocator() *PushLocator {
	return &PushLocator{watches: make(map[WatchID]locWatch)}
}

// WatchPosition fails immediately when an error was reported while no
// watch was active; the error is consumed so a later retry can succeed.
func (l *PushLocator) WatchPosition(onFix func(campus.LocationSample), onError func(error)) (WatchID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.pending; err != nil {
		l.pending = nil
		return 0, err
	}
	l.next++
	l.watches[l.next] = locWatch{onFix: onFix, onError: onError}
	return l.next, nil
}

// ClearWatch removes the watch and waits out any delivery in progress, so
// no callback for id runs after it returns.
func (l *PushLocator) ClearWatch(id WatchID) {
	l.mu.Lock()
	delete(l.watches, id)
	l.mu.Unlock()

	l.deliver.Lock()
	l.deliver.Unlock()
}

// Push delivers a fix to every active watch. It reports whether anyone
// was listening.
func (l *PushLocator) Push(s campus.LocationSample) bool {
	l.deliver.Lock()
	defer l.deliver.Unlock()
	ws := l.snapshot()
	for _, w := range ws {
		w.onFix(s)
	}
	return len(ws) > 0
}

// Fail delivers err to active watches, or holds it for the next watch
// until Reset.
func (l *PushLocator) Fail(err error) {
	l.deliver.Lock()
	defer l.deliver.Unlock()
	ws := l.snapshot()
	if len(ws) == 0 {
		l.mu.Lock()
		l.pending = err
		l.mu.Unlock()
		return
	}
	for _, w := range ws {
		w.onError(err)
	}
}

// Reset drops an error held for the next watch.
func (l *PushLocator) Reset() {
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
}

// Active reports the number of open watches.
func (l *PushLocator) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.watches)
}

func (l *PushLocator) snapshot() []locWatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	ws := make([]locWatch, 0, len(l.watches))
	for _, w := range l.watches {
		ws = append(ws, w)
	}
	return ws
}

// PushCamera is a Camera fed by frames the UI streams over a WebSocket.
// Streams share the latest frame; a stream is ready once any frame has
// arrived.
type PushCamera struct {
	mu      sync.Mutex
	frame   image.Image
	ready   chan struct{}
	streams map[*pushStream]struct{}
	pending error
}

func NewPushCamera() *PushCamera {
	return &PushCamera{
		ready:   make(chan struct{}),
		streams: make(map[*pushStream]struct{}),
	}
}

func (c *PushCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pending; err != nil {
		c.pending = nil
		return nil, err
	}
	s := &pushStream{cam: c}
	c.streams[s] = struct{}{}
	return s, nil
}

// PushFrame decodes a JPEG or PNG frame and makes it current.
func (c *PushCamera) PushFrame(data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	c.SetFrame(img)
	return nil
}

func (c *PushCamera) SetFrame(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := c.frame == nil
	c.frame = img
	if first {
		close(c.ready)
	}
}

// Fail holds err for the next Open, modelling a denied or missing camera.
func (c *PushCamera) Fail(err error) {
	c.mu.Lock()
	c.pending = err
	c.mu.Unlock()
}

// Reset drops an error held for the next Open.
func (c *PushCamera) Reset() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

// OpenStreams reports streams that have not been stopped.
func (c *PushCamera) OpenStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

type pushStream struct {
	cam *PushCamera
}

func (s *pushStream) Ready(ctx context.Context) (int, int, error) {
	s.cam.mu.Lock()
	ready := s.cam.ready
	s.cam.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}

	img, ok := s.Frame()
	if !ok {
		return 0, 0, ErrCameraUnavailable
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

func (s *pushStream) Frame() (image.Image, bool) {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if _, open := s.cam.streams[s]; !open || s.cam.frame == nil {
		return nil, false
	}
	return s.cam.frame, true
}

func (s *pushStream) Stop() {
	s.cam.mu.Lock()
	delete(s.cam.streams, s)
	s.cam.mu.Unlock()
}
