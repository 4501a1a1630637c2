package backend

import (
	"context"
	"net/http"

	"github.com/campusquest/companion/internal/campus"
)

func (c *Client) GetJournal(ctx context.Context, challenge string) (campus.JournalEntry, error) {
	var out campus.JournalEntry
	err := c.do(ctx, http.MethodGet, challengePath(challenge), nil, &out)
	return out, err
}

type JournalNote struct {
	Note string `json:"note"`
}

func (c *Client) PutJournal(ctx context.Context, challenge, note string) (campus.JournalEntry, error) {
	var out campus.JournalEntry
	err := c.do(ctx, http.MethodPut, challengePath(challenge), JournalNote{Note: note}, &out)
	return out, err
}

func (c *Client) DeleteJournal(ctx context.Context, challenge string) error {
	return c.do(ctx, http.MethodDelete, challengePath(challenge), nil, nil)
}

type JournalPhoto struct {
	ImageData string `json:"image_data"`
}

func (c *Client) GetJournalPhoto(ctx context.Context, challenge string) (JournalPhoto, error) {
	var out JournalPhoto
	err := c.do(ctx, http.MethodGet, challengePath(challenge)+"/photo", nil, &out)
	return out, err
}

func (c *Client) PutJournalPhoto(ctx context.Context, challenge, image string) error {
	return c.do(ctx, http.MethodPut, challengePath(challenge)+"/photo",
		JournalPhoto{ImageData: StripDataURI(image)}, nil)
}

func (c *Client) DeleteJournalPhoto(ctx context.Context, challenge string) error {
	return c.do(ctx, http.MethodDelete, challengePath(challenge)+"/photo", nil, nil)
}
