package backend

import (
	"context"
	"net/http"

	"github.com/campusquest/companion/internal/campus"
)

func (c *Client) Profile(ctx context.Context) (campus.Profile, error) {
	var out campus.Profile
	err := c.do(ctx, http.MethodGet, "/api/profile", nil, &out)
	return out, err
}

func (c *Client) Rewards(ctx context.Context) ([]campus.Reward, error) {
	var out []campus.Reward
	err := c.do(ctx, http.MethodGet, "/api/rewards", nil, &out)
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context) ([]campus.LeaderboardEntry, error) {
	var out []campus.LeaderboardEntry
	err := c.do(ctx, http.MethodGet, "/api/leaderboard", nil, &out)
	return out, err
}

type TransactionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Redeem spends currency on a reward.
func (c *Client) Redeem(ctx context.Context, tx campus.Transaction) (TransactionResponse, error) {
	var out TransactionResponse
	err := c.do(ctx, http.MethodPost, "/api/transaction", tx, &out)
	return out, err
}

// Ping checks that the backend answers at all; any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL()+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
