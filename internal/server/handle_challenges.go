package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/campusquest/companion/internal/backend"
	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/store"
)

// ChallengeCache is the local copy of the backend's challenge list.
type ChallengeCache interface {
	List(ctx context.Context) ([]campus.Challenge, error)
	Get(ctx context.Context, name string) (campus.Challenge, error)
	Replace(ctx context.Context, list []campus.Challenge) error
}

// ChallengeResponse is a challenge as the UI sees it. The verification
// secret stays on the companion.
type ChallengeResponse struct {
	Name        string                 `json:"name"`
	Category    string                 `json:"category"`
	Location    string                 `json:"location"`
	Tagline     string                 `json:"tagline"`
	Description string                 `json:"description"`
	Reward      decimal.Decimal        `json:"reward"`
	UnlockAt    *time.Time             `json:"unlockAt,omitempty"`
	Status      campus.ChallengeStatus `json:"status"`
	Latitude    *float64               `json:"latitude,omitempty"`
	Longitude   *float64               `json:"longitude,omitempty"`
}

func toChallengeResponse(c campus.Challenge) ChallengeResponse {
	return ChallengeResponse{
		Name:        c.Name,
		Category:    c.Category,
		Location:    c.Location,
		Tagline:     c.Tagline,
		Description: c.Description,
		Reward:      c.Reward,
		UnlockAt:    c.UnlockAt,
		Status:      c.Status,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
	}
}

// handleListChallenges serves the cache, loading it from the backend when
// it is empty or the caller asks for ?refresh=true.
func handleListChallenges(logger *slog.Logger, cache ChallengeCache, api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		list, err := cache.List(ctx)
		if err != nil {
			logger.Error("listing cached challenges", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if len(list) == 0 || r.URL.Query().Get("refresh") == "true" {
			fresh, err := api.ListChallenges(ctx)
			if err != nil {
				logger.Warn("loading challenges from backend", "error", err)
				writeBackendError(w, err)
				return
			}
			if err := cache.Replace(ctx, fresh); err != nil {
				logger.Error("caching challenges", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			list = fresh
		}

		resp := make([]ChallengeResponse, len(list))
		for i, c := range list {
			resp[i] = toChallengeResponse(c)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleSyncAdminChallenges reloads the cache from the admin listing, which
// carries verification secrets, so match-secret flows can check codes before
// submitting. The response is the same secret-free view players get.
func handleSyncAdminChallenges(logger *slog.Logger, cache ChallengeCache, api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		list, err := api.ListAdminChallenges(ctx)
		if err != nil {
			logger.Warn("loading admin challenges", "error", err)
			writeBackendError(w, err)
			return
		}
		if err := cache.Replace(ctx, list); err != nil {
			logger.Error("caching challenges", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		logger.Info("challenge cache synced from admin listing", "count", len(list))

		resp := make([]ChallengeResponse, len(list))
		for i, c := range list {
			resp[i] = toChallengeResponse(c)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGetChallenge(cache ChallengeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := cache.Get(r.Context(), chi.URLParam(r, "name"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toChallengeResponse(c))
	}
}
