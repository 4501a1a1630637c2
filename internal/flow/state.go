// Package flow drives a challenge completion: location, QR scan,
// commemorate, submit. Transitions are a pure reducer over Model; Session
// wires the reducer to devices and the backend.
package flow

import (
	"fmt"

	"github.com/campusquest/companion/internal/campus"
)

type State int

const (
	Idle State = iota
	Locating
	Scanning
	Commemorating
	Submitting
)

var stateNames = [...]string{
	Idle:          "idle",
	Locating:      "location",
	Scanning:      "qr",
	Commemorating: "commemorate",
	Submitting:    "submitting",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Variant decides which scanned codes advance the flow.
type Variant string

const (
	// MatchSecret only accepts the challenge's own verification secret.
	MatchSecret Variant = "match-secret"
	// AnyCode accepts any decoded text and leaves validation to the backend.
	AnyCode Variant = "any-code"
)

func (v Variant) Valid() bool {
	return v == MatchSecret || v == AnyCode
}

// Model is the whole transient state of one completion flow.
type Model struct {
	State     State
	Challenge campus.Challenge
	Variant   Variant
	Location  *campus.LocationSample
	Scan      *campus.ScanResult
	Image     *campus.CapturedImage
	Note      string
	Error     string
	// Completed is set by a confirmed submission and cleared on re-entry.
	Completed bool
}

type Event interface {
	event()
}

type (
	Started struct {
		Challenge campus.Challenge
		Variant   Variant
	}
	LocationFound   struct{ Sample campus.LocationSample }
	LocationFailed  struct{ Err error }
	CodeScanned     struct{ Result campus.ScanResult }
	ScanFailed      struct{ Err error }
	Cancelled       struct{}
	ImageSet        struct{ Image *campus.CapturedImage }
	NoteSet         struct{ Note string }
	Confirmed       struct{}
	SubmitSucceeded struct{}
	SubmitFailed    struct{ Message string }
)

func (Started) event()         {}
func (LocationFound) event()   {}
func (LocationFailed) event()  {}
func (CodeScanned) event()     {}
func (ScanFailed) event()      {}
func (Cancelled) event()       {}
func (ImageSet) event()        {}
func (NoteSet) event()         {}
func (Confirmed) event()       {}
func (SubmitSucceeded) event() {}
func (SubmitFailed) event()    {}
