package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
	"github.com/campusquest/companion/internal/flow"
	"github.com/campusquest/companion/internal/geo"
	"github.com/campusquest/companion/internal/metrics"
	"github.com/campusquest/companion/internal/qrscan"
)

var errFlowNotFound = errors.New("flow not found")

// FlowConfig is what every flow session shares.
type FlowConfig struct {
	Submitter flow.Submitter
	Statuses  flow.StatusSetter
	Timeouts  flow.Timeouts
	FrameRate int
	Clock     clock.Clock
}

// Flow is one session plus the push-fed devices the UI drives.
type Flow struct {
	session *flow.Session
	locator *device.PushLocator
	camera  *device.PushCamera
}

// Registry owns the open flow sessions, keyed by a random ID.
type Registry struct {
	cfg     FlowConfig
	broker  *Broker
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	flows map[string]*Flow
}

func NewRegistry(cfg FlowConfig, broker *Broker, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	return &Registry{
		cfg:     cfg,
		broker:  broker,
		metrics: m,
		logger:  logger,
		flows:   make(map[string]*Flow),
	}
}

// Create opens a session for ch and starts it.
func (r *Registry) Create(ch campus.Challenge, variant flow.Variant) (*Flow, error) {
	id := uuid.NewString()
	timers := device.NewTimers(r.cfg.Clock)
	locator := device.NewPushLocator()
	camera := device.NewPushCamera()
	frames := device.NewTickClock(r.cfg.Clock, r.cfg.FrameRate)

	deps := flow.Deps{
		Sampler:   geo.NewSampler(locator, timers),
		Scanner:   qrscan.NewScanner(camera, frames, timers, nil),
		Locator:   locator,
		Camera:    camera,
		Submitter: r.cfg.Submitter,
		Statuses:  r.cfg.Statuses,
		Timeouts:  r.cfg.Timeouts,
		Logger:    r.logger,
	}
	if r.metrics != nil {
		deps.Observer = r.metrics
	}
	e := &Flow{
		session: flow.NewSession(id, deps),
		locator: locator,
		camera:  camera,
	}
	e.session.OnChange(func(v flow.View) { r.broker.Publish(id, v) })

	if err := e.session.Start(ch, variant); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.flows[id] = e
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.FlowsActive.Inc()
	}
	r.logger.Info("flow opened", "flow", id, "challenge", ch.Name, "variant", variant)
	return e, nil
}

func (r *Registry) Get(id string) (*Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.flows[id]
	if !ok {
		return nil, errFlowNotFound
	}
	return e, nil
}

// Remove closes the session and forgets it. Device handles are released
// before it returns.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	e, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()
	if !ok {
		return errFlowNotFound
	}

	e.session.Close()
	r.broker.Close(id)
	if r.metrics != nil {
		r.metrics.FlowsActive.Dec()
	}
	r.logger.Info("flow closed", "flow", id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

// Close removes every session.
func (r *Registry) Close(_ context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
	return nil
}
