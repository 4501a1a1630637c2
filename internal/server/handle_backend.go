package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/campusquest/companion/internal/backend"
	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/geo"
)

type JournalNoteRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type JournalPhotoRequest struct {
	ImageData string `json:"imageData" validate:"required"`
}

type TransactionRequest struct {
	RewardID string          `json:"rewardId" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

type SampleRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0"`
}

// GeolocationRequest carries every fix an admin collected on site; the
// most accurate one is stored.
type GeolocationRequest struct {
	Samples []SampleRequest `json:"samples" validate:"required,min=1,dive"`
}

func handleGetJournal(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := api.GetJournal(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handlePutJournal(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JournalNoteRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entry, err := api.PutJournal(r.Context(), chi.URLParam(r, "name"), req.Note)
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleDeleteJournal(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := api.DeleteJournal(r.Context(), chi.URLParam(r, "name")); err != nil {
			writeBackendError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetJournalPhoto(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := api.GetJournalPhoto(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, JournalPhotoRequest{ImageData: p.ImageData})
	}
}

func handlePutJournalPhoto(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JournalPhotoRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := api.PutJournalPhoto(r.Context(), chi.URLParam(r, "name"), req.ImageData); err != nil {
			writeBackendError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteJournalPhoto(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := api.DeleteJournalPhoto(r.Context(), chi.URLParam(r, "name")); err != nil {
			writeBackendError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleProfile(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := api.Profile(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleRewards(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := api.Rewards(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		if list == nil {
			list = []campus.Reward{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleLeaderboard(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := api.Leaderboard(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		if list == nil {
			list = []campus.LeaderboardEntry{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleRedeem(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransactionRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !req.Amount.IsPositive() {
			writeError(w, http.StatusBadRequest, "amount must be positive")
			return
		}
		resp, err := api.Redeem(r.Context(), campus.Transaction{RewardID: req.RewardID, Amount: req.Amount})
		if err != nil {
			writeBackendError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleSetGeolocation stores the best of the submitted fixes as the
// challenge's coordinates.
func handleSetGeolocation(logger *slog.Logger, api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GeolocationRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var best *campus.LocationSample
		now := time.Now()
		for _, s := range req.Samples {
			best = geo.KeepIfBetter(campus.LocationSample{
				Latitude:   s.Latitude,
				Longitude:  s.Longitude,
				Accuracy:   s.Accuracy,
				CapturedAt: now,
			}, best)
		}

		name := chi.URLParam(r, "name")
		if err := api.SetChallengeGeolocation(r.Context(), name, *best); err != nil {
			logger.Warn("setting challenge geolocation", "challenge", name, "error", err)
			writeBackendError(w, err)
			return
		}
		logger.Info("challenge geotagged", "challenge", name, "accuracy", best.Accuracy, "samples", len(req.Samples))
		writeJSON(w, http.StatusOK, best)
	}
}
