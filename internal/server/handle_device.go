package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/device"
)

const maxFrameBytes = 8 << 20

// LocationRequest is either a fix or a platform error.
type LocationRequest struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0"`
	Error     string  `json:"error,omitempty" validate:"omitempty,oneof=denied unavailable"`
}

type LocationResponse struct {
	Delivered bool `json:"delivered"`
}

type DeviceErrorRequest struct {
	Error string `json:"error" validate:"required,oneof=denied unavailable"`
}

func handlePushLocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LocationRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		loc := flowFrom(r).locator

		if req.Error != "" {
			err := device.ErrLocationUnavailable
			if req.Error == "denied" {
				err = device.ErrLocationDenied
			}
			loc.Fail(err)
			writeJSON(w, http.StatusAccepted, LocationResponse{Delivered: loc.Active() > 0})
			return
		}

		delivered := loc.Push(campus.LocationSample{
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			Accuracy:   req.Accuracy,
			CapturedAt: time.Now(),
		})
		writeJSON(w, http.StatusAccepted, LocationResponse{Delivered: delivered})
	}
}

func handleCameraError() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeviceErrorRequest
		if err := decodeValid(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		err := device.ErrCameraUnavailable
		if req.Error == "denied" {
			err = device.ErrCameraDenied
		}
		flowFrom(r).camera.Fail(err)
		w.WriteHeader(http.StatusAccepted)
	}
}

// handleCameraFeed accepts a WebSocket of binary JPEG/PNG frames and makes
// each the camera's current frame. Undecodable frames are skipped.
func handleCameraFeed(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e := flowFrom(r)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
		defer cancel()

		frames := 0
		for {
			typ, msg, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure && !errors.Is(err, context.Canceled) {
					logger.Debug("camera feed ended", "flow", e.session.ID, "error", err)
				}
				logger.Debug("camera feed closed", "flow", e.session.ID, "frames", frames)
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			if err := e.camera.PushFrame(msg); err != nil {
				logger.Debug("dropping camera frame", "flow", e.session.ID, "error", err)
				continue
			}
			frames++
		}
	}
}
