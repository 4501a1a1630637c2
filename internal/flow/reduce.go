package flow

import (
	"errors"
	"strings"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
	"github.com/campusquest/companion/internal/geo"
	"github.com/campusquest/companion/internal/qrscan"
)

var (
	ErrCodeMismatch         = errors.New("scanned code does not match this challenge")
	ErrIncompleteSubmission = errors.New("submission needs both a location and a scanned code")
)

// Reduce returns the model after ev. Events that are not valid in the
// current state return m unchanged, so no step can be skipped.
func Reduce(m Model, ev Event) Model {
	switch e := ev.(type) {
	case Started:
		if m.State != Idle {
			return m
		}
		return Model{State: Locating, Challenge: e.Challenge, Variant: e.Variant}

	case LocationFound:
		if m.State != Locating {
			return m
		}
		sample := e.Sample
		m.State = Scanning
		m.Location = &sample
		return m

	case LocationFailed:
		if m.State != Locating {
			return m
		}
		return abort(m, UserMessage(e.Err))

	case CodeScanned:
		if m.State != Scanning {
			return m
		}
		if m.Variant == MatchSecret && !matches(e.Result.Text, m.Challenge.VerificationSecret) {
			return abort(m, UserMessage(ErrCodeMismatch))
		}
		res := e.Result
		m.State = Commemorating
		m.Scan = &res
		return m

	case ScanFailed:
		if m.State != Scanning {
			return m
		}
		return abort(m, UserMessage(e.Err))

	case Cancelled:
		if m.State == Idle {
			return m
		}
		return Model{State: Idle, Challenge: m.Challenge, Variant: m.Variant}

	case ImageSet:
		if m.State != Commemorating {
			return m
		}
		m.Image = e.Image
		return m

	case NoteSet:
		if m.State != Commemorating {
			return m
		}
		m.Note = e.Note
		return m

	case Confirmed:
		if m.State != Commemorating || m.Location == nil || m.Scan == nil {
			return m
		}
		m.State = Submitting
		m.Error = ""
		return m

	case SubmitSucceeded:
		if m.State != Submitting {
			return m
		}
		return Model{State: Idle, Challenge: m.Challenge, Variant: m.Variant, Completed: true}

	case SubmitFailed:
		if m.State != Submitting {
			return m
		}
		m.State = Commemorating
		m.Error = e.Message
		return m
	}
	return m
}

// abort returns to idle with msg and drops every transient field.
func abort(m Model, msg string) Model {
	return Model{State: Idle, Challenge: m.Challenge, Variant: m.Variant, Error: msg}
}

// matches reports whether scanned is the challenge's code. Player listings
// carry no secret; the backend checks those codes on completion.
func matches(scanned, secret string) bool {
	if secret == "" {
		return true
	}
	return strings.TrimSpace(scanned) == strings.TrimSpace(secret)
}

// BuildSubmission assembles the completion request from a commemorate-step
// model. It fails unless both a location and a scan are present.
func BuildSubmission(m Model) (campus.CompletionSubmission, error) {
	if m.Location == nil || m.Scan == nil {
		return campus.CompletionSubmission{}, ErrIncompleteSubmission
	}
	sub := campus.CompletionSubmission{
		ChallengeName:    m.Challenge.Name,
		VerificationCode: m.Scan.Text,
		Location:         *m.Location,
	}
	if m.Image != nil {
		sub.ImageData = m.Image.Final()
	}
	if note := strings.TrimSpace(m.Note); note != "" {
		sub.Note = &note
	}
	return sub, nil
}

// UserMessage maps a flow error to the text shown to the player.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, geo.ErrLocationDenied):
		return "Location access was denied. Allow location access and try again."
	case errors.Is(err, geo.ErrNoFix), errors.Is(err, device.ErrLocationUnavailable):
		return "Could not determine your location. Move to open sky and try again."
	case errors.Is(err, device.ErrCameraDenied):
		return "Camera access was denied. Allow camera access and try again."
	case errors.Is(err, device.ErrCameraUnavailable):
		return "No camera is available on this device."
	case errors.Is(err, qrscan.ErrScanTimeout):
		return "No QR code was detected. Try again."
	case errors.Is(err, ErrCodeMismatch):
		return "This QR code does not belong to this challenge."
	}
	return err.Error()
}
