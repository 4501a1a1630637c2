// Package campus defines the core domain types shared by the completion
// flow. It has no infrastructure dependencies beyond decimal money values.
package campus

import (
	"time"

	"github.com/shopspring/decimal"
)

type ChallengeStatus string

const (
	StatusLocked    ChallengeStatus = "locked"
	StatusAvailable ChallengeStatus = "available"
	StatusCompleted ChallengeStatus = "completed"
)

// Valid reports whether s is one of the statuses the backend assigns.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case StatusLocked, StatusAvailable, StatusCompleted:
		return true
	}
	return false
}

// Challenge is keyed by Name. Status is always backend-supplied.
type Challenge struct {
	Name               string          `json:"name"`
	Category           string          `json:"category"`
	Location           string          `json:"location"`
	Tagline            string          `json:"tagline"`
	Description        string          `json:"description"`
	Reward             decimal.Decimal `json:"reward"`
	UnlockAt           *time.Time      `json:"unlock_at,omitempty"`
	VerificationSecret string          `json:"verification_secret,omitempty"`
	Status             ChallengeStatus `json:"status"`
	Latitude           *float64        `json:"latitude,omitempty"`
	Longitude          *float64        `json:"longitude,omitempty"`
}

type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"capturedAt"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScanResult carries the decoded payload and the detection quadrilateral in
// top-left, top-right, bottom-right, bottom-left order.
type ScanResult struct {
	Text    string   `json:"text"`
	Corners [4]Point `json:"corners"`
}

type Transform struct {
	Scale float64 `json:"scale"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Identity is the transform of an unedited image.
var Identity = Transform{Scale: 1}

func (t Transform) IsIdentity() bool {
	return t == Identity
}

// CapturedImage is an image held as a data URI. Baked is set once an edit
// has been rendered and replaces DataURI as the image to submit.
type CapturedImage struct {
	DataURI   string    `json:"dataUri"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Transform Transform `json:"transform"`
	Baked     string    `json:"baked,omitempty"`
}

// Final returns the image that should be submitted.
func (c CapturedImage) Final() string {
	if c.Baked != "" {
		return c.Baked
	}
	return c.DataURI
}

type CompletionSubmission struct {
	ChallengeName    string
	VerificationCode string
	ImageData        string
	Note             *string
	Location         LocationSample
}

type JournalEntry struct {
	ChallengeName string    `json:"challenge_name"`
	Note          string    `json:"note"`
	Photo         string    `json:"photo,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Profile struct {
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	Completed int             `json:"completed"`
}

type Reward struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int             `json:"stock"`
}

type LeaderboardEntry struct {
	Rank     int             `json:"rank"`
	Username string          `json:"username"`
	Points   decimal.Decimal `json:"points"`
}

type Transaction struct {
	RewardID string          `json:"reward_id"`
	Amount   decimal.Decimal `json:"amount"`
}
