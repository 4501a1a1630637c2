package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/campusquest/companion/internal/campus"
)

// ListChallenges returns the caller's challenges with their status.
func (c *Client) ListChallenges(ctx context.Context) ([]campus.Challenge, error) {
	var out []campus.Challenge
	if err := c.do(ctx, http.MethodGet, "/api/challenges", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAdminChallenges returns every challenge including verification secrets.
func (c *Client) ListAdminChallenges(ctx context.Context) ([]campus.Challenge, error) {
	var out []campus.Challenge
	if err := c.do(ctx, http.MethodGet, "/api/admin/challenges", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type CompleteRequest struct {
	ChallengeName        string   `json:"challenge_name"`
	VerificationCode     string   `json:"verification_code"`
	ImageData            string   `json:"image_data"`
	Note                 *string  `json:"note"`
	UserLatitude         *float64 `json:"user_latitude,omitempty"`
	UserLongitude        *float64 `json:"user_longitude,omitempty"`
	UserLocationAccuracy *float64 `json:"user_location_accuracy,omitempty"`
}

type CompleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// NewCompleteRequest converts a submission to the wire body. The image is
// sent as bare base64 with any data-URI prefix removed.
func NewCompleteRequest(sub campus.CompletionSubmission) CompleteRequest {
	lat, lng, acc := sub.Location.Latitude, sub.Location.Longitude, sub.Location.Accuracy
	return CompleteRequest{
		ChallengeName:        sub.ChallengeName,
		VerificationCode:     sub.VerificationCode,
		ImageData:            StripDataURI(sub.ImageData),
		Note:                 sub.Note,
		UserLatitude:         &lat,
		UserLongitude:        &lng,
		UserLocationAccuracy: &acc,
	}
}

// Complete posts a completion. A 2xx reply is decoded even when it carries
// success=false; callers decide how to surface it.
func (c *Client) Complete(ctx context.Context, sub campus.CompletionSubmission) (CompleteResponse, error) {
	var out CompleteResponse
	err := c.do(ctx, http.MethodPost, "/api/complete", NewCompleteRequest(sub), &out)
	return out, err
}

type GeolocationRequest struct {
	Name             string  `json:"name"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	LocationAccuracy float64 `json:"location_accuracy"`
}

// SetChallengeGeolocation associates a challenge with a physical location.
// Admin only.
func (c *Client) SetChallengeGeolocation(ctx context.Context, name string, s campus.LocationSample) error {
	return c.do(ctx, http.MethodPut, "/api/admin/challenges/geolocation", GeolocationRequest{
		Name:             name,
		Latitude:         s.Latitude,
		Longitude:        s.Longitude,
		LocationAccuracy: s.Accuracy,
	}, nil)
}

// StripDataURI removes a "data:<mime>;base64," prefix if present.
func StripDataURI(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

func challengePath(name string) string {
	return "/api/journal/" + url.PathEscape(name)
}
