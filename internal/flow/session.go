package flow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/campusquest/companion/internal/backend"
	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
	"github.com/campusquest/companion/internal/geo"
	"github.com/campusquest/companion/internal/photo"
	"github.com/campusquest/companion/internal/qrscan"
)

var (
	ErrWrongState = errors.New("action not allowed in the current step")
	ErrNoImage    = errors.New("no image to edit")
	ErrNotEditing = errors.New("no edit in progress")
	ErrRejected   = errors.New("completion rejected")

	ErrChallengeCompleted = errors.New("challenge already completed")
	ErrChallengeLocked    = errors.New("challenge is locked")
)

// Submitter sends completions to the backend.
type Submitter interface {
	Complete(ctx context.Context, sub campus.CompletionSubmission) (backend.CompleteResponse, error)
}

// StatusSetter records the optimistic status flip after a completion.
type StatusSetter interface {
	MarkCompleted(ctx context.Context, name string) error
}

// Observer is told about every state change.
type Observer interface {
	Transition(from, to State)
}

type Timeouts struct {
	Geo        time.Duration
	Scan       time.Duration
	PhotoReady time.Duration
}

type Deps struct {
	Sampler   *geo.Sampler
	Scanner   *qrscan.Scanner
	Locator   device.Locator
	Camera    device.Camera
	Submitter Submitter
	Statuses  StatusSetter
	Observer  Observer
	Timeouts  Timeouts
	Logger    *slog.Logger
}

// Session is one completion flow instance. Steps run one at a time on a
// single device task; Close cancels it and waits for every device handle
// to be released.
type Session struct {
	ID   string
	deps Deps

	mu       sync.Mutex
	model    Model
	task     *device.Task
	editor   *photo.Editor
	overlay  *image.RGBA
	onChange []func(View)
}

func NewSession(id string, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Session{ID: id, deps: deps}
}

// OnChange registers fn to receive a view after every model change.
func (s *Session) OnChange(fn func(View)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

func (s *Session) Model() Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Overlay returns a copy of the last detection overlay, or nil.
func (s *Session) Overlay() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overlay == nil {
		return nil
	}
	cp := image.NewRGBA(s.overlay.Bounds())
	copy(cp.Pix, s.overlay.Pix)
	return cp
}

// Start enters the flow for ch: location sampling, then QR scanning. It
// returns once the task is launched; progress arrives through OnChange.
func (s *Session) Start(ch campus.Challenge, variant Variant) error {
	if !variant.Valid() {
		return fmt.Errorf("unknown flow variant %q", variant)
	}
	switch ch.Status {
	case campus.StatusCompleted:
		return ErrChallengeCompleted
	case campus.StatusLocked:
		return ErrChallengeLocked
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.State != Idle {
		return ErrWrongState
	}
	if s.model.Completed && s.model.Challenge.Name == ch.Name {
		return ErrChallengeCompleted
	}
	s.resetDevicesLocked()
	s.editor = nil
	s.overlay = nil
	s.dispatchLocked(Started{Challenge: ch, Variant: variant})
	s.task = device.Start(context.Background(), s.locateAndScan)
	return nil
}

// Restart re-enters the flow for the challenge it last ran. A flow whose
// submission was accepted cannot be restarted.
func (s *Session) Restart() error {
	m := s.Model()
	if m.Challenge.Name == "" {
		return ErrWrongState
	}
	return s.Start(m.Challenge, m.Variant)
}

func (s *Session) locateAndScan(ctx context.Context) error {
	log := s.deps.Logger.With("flow", s.ID)

	sample, err := s.deps.Sampler.Sample(ctx, s.deps.Timeouts.Geo)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.Info("location failed", "error", err)
		s.dispatch(LocationFailed{Err: err})
		return err
	}
	log.Debug("location fixed", "accuracy", sample.Accuracy)
	s.dispatch(LocationFound{Sample: sample})

	overlay := &qrscan.Canvas{}
	res, err := s.deps.Scanner.Scan(ctx, overlay, s.deps.Timeouts.Scan)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.Info("scan failed", "error", err)
		s.dispatch(ScanFailed{Err: err})
		return err
	}
	s.mu.Lock()
	s.overlay = overlay.Image()
	s.dispatchLocked(CodeScanned{Result: res})
	s.mu.Unlock()
	return nil
}

// Close abandons the flow. Device handles are released before it returns;
// challenge status is never touched.
func (s *Session) Close() {
	s.mu.Lock()
	task := s.task
	s.task = nil
	s.mu.Unlock()

	task.Cancel()

	s.mu.Lock()
	s.resetDevicesLocked()
	s.editor = nil
	s.dispatchLocked(Cancelled{})
	s.mu.Unlock()
}

// resetDevicesLocked drops device errors reported between steps so they
// cannot fail a later attempt.
func (s *Session) resetDevicesLocked() {
	for _, d := range []any{s.deps.Locator, s.deps.Camera} {
		if r, ok := d.(device.Resetter); ok {
			r.Reset()
		}
	}
}

// Wait blocks until the current device task, if any, has finished.
func (s *Session) Wait() {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()
	if task != nil {
		task.Wait()
	}
}

func (s *Session) SetNote(note string) error {
	return s.inCommemorate(func() { s.dispatchLocked(NoteSet{Note: note}) })
}

// UploadImage replaces the commemorative image with an uploaded one.
func (s *Session) UploadImage(data []byte) error {
	img, err := photo.Load(data)
	if err != nil {
		return err
	}
	return s.setImage(img)
}

// CapturePhoto takes a picture from the camera.
func (s *Session) CapturePhoto(ctx context.Context) error {
	if s.Model().State != Commemorating {
		return ErrWrongState
	}
	img, err := photo.TakePicture(ctx, s.deps.Camera, s.deps.Timeouts.PhotoReady)
	if err != nil {
		return err
	}
	return s.setImage(img)
}

func (s *Session) ClearImage() error {
	return s.inCommemorate(func() {
		s.editor = nil
		s.dispatchLocked(ImageSet{})
	})
}

func (s *Session) setImage(img campus.CapturedImage) error {
	return s.inCommemorate(func() {
		s.editor = nil
		s.dispatchLocked(ImageSet{Image: &img})
	})
}

// BeginEdit opens a pan/zoom session over the current image as displayed
// displayWidth pixels wide.
func (s *Session) BeginEdit(displayWidth float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.State != Commemorating {
		return ErrWrongState
	}
	if s.model.Image == nil {
		return ErrNoImage
	}
	ed, err := photo.NewEditor(*s.model.Image, displayWidth)
	if err != nil {
		return err
	}
	s.editor = ed
	s.notifyLocked()
	return nil
}

// Edit applies fn to the open editor.
func (s *Session) Edit(fn func(*photo.Editor)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.State != Commemorating {
		return ErrWrongState
	}
	if s.editor == nil {
		return ErrNotEditing
	}
	fn(s.editor)
	s.notifyLocked()
	return nil
}

// SaveEdit bakes the edit into the image and closes the editor.
func (s *Session) SaveEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.State != Commemorating {
		return ErrWrongState
	}
	if s.editor == nil {
		return ErrNotEditing
	}
	img, err := s.editor.Save()
	if err != nil {
		return err
	}
	s.editor = nil
	s.dispatchLocked(ImageSet{Image: &img})
	return nil
}

// Confirm submits the completion and waits for the backend's verdict. A
// rejection returns the flow to commemorate with image and note intact.
func (s *Session) Confirm(ctx context.Context) (View, error) {
	s.mu.Lock()
	if s.model.State != Commemorating {
		s.mu.Unlock()
		return View{}, ErrWrongState
	}
	sub, err := BuildSubmission(s.model)
	if err != nil {
		s.mu.Unlock()
		return View{}, err
	}
	s.editor = nil
	s.dispatchLocked(Confirmed{})
	task := device.Start(ctx, func(ctx context.Context) error {
		return s.submit(ctx, sub)
	})
	s.task = task
	s.mu.Unlock()

	err = task.Wait()
	return s.View(), err
}

func (s *Session) submit(ctx context.Context, sub campus.CompletionSubmission) error {
	log := s.deps.Logger.With("flow", s.ID, "challenge", sub.ChallengeName)

	resp, err := s.deps.Submitter.Complete(ctx, sub)
	if err != nil {
		log.Warn("completion request failed", "error", err)
		s.dispatch(SubmitFailed{Message: submitMessage(err)})
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "The challenge could not be completed."
		}
		log.Info("completion rejected", "message", msg)
		s.dispatch(SubmitFailed{Message: msg})
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	if err := s.deps.Statuses.MarkCompleted(ctx, sub.ChallengeName); err != nil {
		log.Warn("marking challenge completed", "error", err)
	}
	log.Info("challenge completed")
	s.dispatch(SubmitSucceeded{})
	return nil
}

func submitMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "Could not reach the server. Try again."
}

func (s *Session) inCommemorate(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.State != Commemorating {
		return ErrWrongState
	}
	fn()
	return nil
}

func (s *Session) dispatch(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatchLocked(ev)
}

func (s *Session) dispatchLocked(ev Event) {
	from := s.model.State
	s.model = Reduce(s.model, ev)
	if s.deps.Observer != nil && from != s.model.State {
		s.deps.Observer.Transition(from, s.model.State)
	}
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	v := s.viewLocked()
	for _, fn := range s.onChange {
		fn(v)
	}
}
