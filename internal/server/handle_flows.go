package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/campusquest/companion/internal/flow"
	"github.com/campusquest/companion/internal/store"
)

type CreateFlowRequest struct {
	Challenge string       `json:"challenge" validate:"required"`
	Variant   flow.Variant `json:"variant,omitempty" validate:"omitempty,oneof=match-secret any-code"`
}

type NoteRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

func handleCreateFlow(logger *slog.Logger, cache ChallengeCache, flows *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateFlowRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Variant == "" {
			req.Variant = flow.MatchSecret
		}

		ch, err := cache.Get(r.Context(), req.Challenge)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if err != nil {
			logger.Error("loading challenge", "challenge", req.Challenge, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		e, err := flows.Create(ch, req.Variant)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, e.session.View())
	}
}

func handleGetFlow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, flowFrom(r).session.View())
	}
}

func handleDeleteFlow(flows *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := flows.Remove(flowFrom(r).session.ID); err != nil {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRestartFlow re-enters the flow with the cached challenge as it is
// now, so a challenge completed or locked since the flow opened is refused.
func handleRestartFlow(logger *slog.Logger, cache ChallengeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := flowFrom(r).session
		m := s.Model()
		if m.Challenge.Name == "" {
			writeFlowError(w, flow.ErrWrongState)
			return
		}

		ch, err := cache.Get(r.Context(), m.Challenge.Name)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		if err != nil {
			logger.Error("loading challenge", "challenge", m.Challenge.Name, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if err := s.Start(ch, m.Variant); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

func handleSetNote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NoteRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s := flowFrom(r).session
		if err := s.SetNote(req.Note); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

// handleSubmit confirms the completion. Accepted and rejected submissions
// both answer 200; the view's state and error tell them apart.
func handleSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := flowFrom(r).session
		view, err := s.Confirm(r.Context())
		if err != nil && !errors.Is(err, flow.ErrRejected) {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flow.ErrWrongState),
		errors.Is(err, flow.ErrNoImage),
		errors.Is(err, flow.ErrNotEditing),
		errors.Is(err, flow.ErrIncompleteSubmission),
		errors.Is(err, flow.ErrChallengeCompleted),
		errors.Is(err, flow.ErrChallengeLocked):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
