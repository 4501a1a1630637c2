// Package geo samples device position over a bounded window and keeps the
// most accurate fix.
package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
)

var (
	// ErrLocationDenied is returned when the platform refused location
	// access before any fix arrived.
	ErrLocationDenied = device.ErrLocationDenied
	// ErrNoFix is returned when the window elapsed without a fix.
	ErrNoFix = errors.New("no location fix before timeout")
)

// KeepIfBetter returns the sample to retain after observing candidate.
// Lower accuracy (meters) wins; ties keep current.
func KeepIfBetter(candidate campus.LocationSample, current *campus.LocationSample) *campus.LocationSample {
	if current == nil || candidate.Accuracy < current.Accuracy {
		return &candidate
	}
	return current
}

type Sampler struct {
	loc    device.Locator
	timers *device.Timers
}

func NewSampler(loc device.Locator, timers *device.Timers) *Sampler {
	if timers == nil {
		timers = device.NewTimers(nil)
	}
	return &Sampler{loc: loc, timers: timers}
}

// Sample watches the position for timeout and returns the best fix seen.
// The watch and the timer are released on every return path.
func (s *Sampler) Sample(ctx context.Context, timeout time.Duration) (campus.LocationSample, error) {
	var (
		mu   sync.Mutex
		best *campus.LocationSample
	)
	denied := make(chan error, 1)

	expired := make(chan struct{})
	stop := s.timers.AfterFunc(timeout, func() { close(expired) })
	defer stop()

	id, err := s.loc.WatchPosition(
		func(sample campus.LocationSample) {
			if sample.CapturedAt.IsZero() {
				sample.CapturedAt = s.timers.Now()
			}
			mu.Lock()
			best = KeepIfBetter(sample, best)
			mu.Unlock()
		},
		func(err error) {
			if errors.Is(err, device.ErrLocationDenied) {
				select {
				case denied <- err:
				default:
				}
			}
		},
	)
	if err != nil {
		if errors.Is(err, device.ErrLocationDenied) {
			return campus.LocationSample{}, err
		}
		return campus.LocationSample{}, fmt.Errorf("watching position: %w", err)
	}
	defer s.loc.ClearWatch(id)

	result := func() (campus.LocationSample, bool) {
		mu.Lock()
		defer mu.Unlock()
		if best == nil {
			return campus.LocationSample{}, false
		}
		return *best, true
	}

	for {
		select {
		case <-ctx.Done():
			return campus.LocationSample{}, ctx.Err()
		case err := <-denied:
			// A denial after fixes arrived does not discard them.
			if _, ok := result(); !ok {
				return campus.LocationSample{}, err
			}
		case <-expired:
			if sample, ok := result(); ok {
				return sample, nil
			}
			return campus.LocationSample{}, ErrNoFix
		}
	}
}

// SampleFunc runs Sample and hands the outcome to fn; a nil sample means
// no fix. The watch is released before fn runs.
func (s *Sampler) SampleFunc(ctx context.Context, timeout time.Duration, fn func(*campus.LocationSample, error)) {
	sample, err := s.Sample(ctx, timeout)
	if err != nil {
		fn(nil, err)
		return
	}
	fn(&sample, nil)
}
