package server

import (
	"image/png"
	"io"
	"net/http"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/photo"
)

const maxPhotoBytes = 10 << 20

type EditRequest struct {
	DisplayWidth float64 `json:"displayWidth" validate:"gt=0"`
}

type PanRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// PinchRequest carries one touch event of a gesture in display pixels.
type PinchRequest struct {
	Phase  string         `json:"phase" validate:"required,oneof=start move end"`
	Points []campus.Point `json:"points" validate:"max=2"`
}

// handleUploadPhoto accepts raw JPEG/PNG bytes or a data URI as the body.
func handleUploadPhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPhotoBytes))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
			return
		}
		s := flowFrom(r).session
		if err := s.UploadImage(data); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

func handleCapturePhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := flowFrom(r).session
		if err := s.CapturePhoto(r.Context()); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

func handleClearPhoto() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := flowFrom(r).session
		if err := s.ClearImage(); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

func handleBeginEdit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EditRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s := flowFrom(r).session
		if err := s.BeginEdit(req.DisplayWidth); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

func handlePan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PanRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s := flowFrom(r).session
		if err := s.Edit(func(e *photo.Editor) { e.Pan(req.DX, req.DY) }); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

func handlePinch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PinchRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s := flowFrom(r).session
		err := s.Edit(func(e *photo.Editor) {
			switch req.Phase {
			case "start":
				e.TouchStart(req.Points)
			case "move":
				e.TouchMove(req.Points)
			default:
				e.TouchEnd()
			}
		})
		if err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

func handleSaveEdit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := flowFrom(r).session
		if err := s.SaveEdit(); err != nil {
			writeFlowError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

// handleOverlay serves the last QR detection box as a transparent PNG.
func handleOverlay() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img := flowFrom(r).session.Overlay()
		if img == nil {
			writeError(w, http.StatusNotFound, "no detection yet")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		png.Encode(w, img)
	}
}
