package geo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
)

func TestKeepIfBetter(t *testing.T) {
	a := campus.LocationSample{Latitude: 1, Accuracy: 20}
	b := campus.LocationSample{Latitude: 2, Accuracy: 8}
	tie := campus.LocationSample{Latitude: 3, Accuracy: 8}

	got := KeepIfBetter(a, nil)
	require.NotNil(t, got)
	assert.Equal(t, 1.0, got.Latitude)

	got = KeepIfBetter(b, got)
	assert.Equal(t, 2.0, got.Latitude)

	got = KeepIfBetter(tie, got)
	assert.Equal(t, 2.0, got.Latitude, "ties keep the current sample")

	got = KeepIfBetter(a, got)
	assert.Equal(t, 2.0, got.Latitude)
}

func TestKeepIfBetterIsMinimum(t *testing.T) {
	accs := []float64{35, 12.5, 80, 8, 8, 9.1, 150, 8.0001}
	var best *campus.LocationSample
	for _, a := range accs {
		best = KeepIfBetter(campus.LocationSample{Accuracy: a}, best)
	}
	for _, a := range accs {
		assert.LessOrEqual(t, best.Accuracy, a)
	}
}

// fakeLocator records watch lifecycle and lets tests emit fixes.
type fakeLocator struct {
	mu      sync.Mutex
	watches map[device.WatchID]func(campus.LocationSample)
	errs    map[device.WatchID]func(error)
	next    device.WatchID
	opened  int
	cleared int
	failErr error
}

func newFakeLocator() *fakeLocator {
	return &fakeLocator{
		watches: make(map[device.WatchID]func(campus.LocationSample)),
		errs:    make(map[device.WatchID]func(error)),
	}
}

func (f *fakeLocator) WatchPosition(onFix func(campus.LocationSample), onError func(error)) (device.WatchID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	f.next++
	f.opened++
	f.watches[f.next] = onFix
	f.errs[f.next] = onError
	return f.next, nil
}

func (f *fakeLocator) ClearWatch(id device.WatchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watches[id]; ok {
		f.cleared++
	}
	delete(f.watches, id)
	delete(f.errs, id)
}

func (f *fakeLocator) emit(s campus.LocationSample) {
	f.mu.Lock()
	var fns []func(campus.LocationSample)
	for _, fn := range f.watches {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (f *fakeLocator) fail(err error) {
	f.mu.Lock()
	var fns []func(error)
	for _, fn := range f.errs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (f *fakeLocator) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

func waitActive(t *testing.T, f *fakeLocator) {
	t.Helper()
	require.Eventually(t, func() bool { return f.active() == 1 }, time.Second, time.Millisecond)
}

func TestSampleKeepsMostAccurate(t *testing.T) {
	loc := newFakeLocator()
	mock := clock.NewMock()
	timers := device.NewTimers(mock)
	s := NewSampler(loc, timers)

	type out struct {
		sample campus.LocationSample
		err    error
	}
	done := make(chan out, 1)
	go func() {
		sample, err := s.Sample(context.Background(), 3*time.Second)
		done <- out{sample, err}
	}()

	waitActive(t, loc)
	loc.emit(campus.LocationSample{Latitude: 1, Accuracy: 30})
	loc.emit(campus.LocationSample{Latitude: 2, Accuracy: 8})
	loc.emit(campus.LocationSample{Latitude: 3, Accuracy: 15})
	mock.Add(3 * time.Second)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 2.0, res.sample.Latitude)
	assert.Equal(t, 8.0, res.sample.Accuracy)
	assert.False(t, res.sample.CapturedAt.IsZero())
	assert.Equal(t, 0, loc.active())
	assert.Equal(t, 1, loc.cleared)
	assert.Equal(t, 0, timers.Pending())
}

func TestSampleNoFix(t *testing.T) {
	loc := newFakeLocator()
	mock := clock.NewMock()
	s := NewSampler(loc, device.NewTimers(mock))

	done := make(chan error, 1)
	go func() {
		_, err := s.Sample(context.Background(), 3*time.Second)
		done <- err
	}()

	waitActive(t, loc)
	mock.Add(3 * time.Second)

	assert.ErrorIs(t, <-done, ErrNoFix)
	assert.Equal(t, 0, loc.active())
}

func TestSampleDeniedOnWatch(t *testing.T) {
	loc := newFakeLocator()
	loc.failErr = device.ErrLocationDenied

	_, err := NewSampler(loc, device.NewTimers(clock.NewMock())).Sample(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrLocationDenied)
	assert.Equal(t, 0, loc.opened)
}

func TestSampleDeniedDuringWatch(t *testing.T) {
	loc := newFakeLocator()
	s := NewSampler(loc, device.NewTimers(clock.NewMock()))

	done := make(chan error, 1)
	go func() {
		_, err := s.Sample(context.Background(), time.Hour)
		done <- err
	}()

	waitActive(t, loc)
	loc.fail(device.ErrLocationDenied)

	assert.ErrorIs(t, <-done, ErrLocationDenied)
	assert.Equal(t, 0, loc.active())
}

func TestSampleCancelReleasesWatch(t *testing.T) {
	loc := newFakeLocator()
	timers := device.NewTimers(clock.NewMock())
	s := NewSampler(loc, timers)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.Sample(ctx, time.Hour)
		done <- err
	}()

	waitActive(t, loc)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, loc.active())
	assert.Equal(t, 0, timers.Pending())
}

func TestSampleFuncReleasesBeforeCallbackPanics(t *testing.T) {
	loc := newFakeLocator()
	mock := clock.NewMock()
	s := NewSampler(loc, device.NewTimers(mock))

	done := make(chan any, 1)
	go func() {
		defer func() { done <- recover() }()
		s.SampleFunc(context.Background(), time.Second, func(*campus.LocationSample, error) {
			panic("callback failed")
		})
	}()

	waitActive(t, loc)
	mock.Add(time.Second)

	assert.Equal(t, "callback failed", <-done)
	assert.Equal(t, 0, loc.active())
}
