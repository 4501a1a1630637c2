package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/campusquest/companion/internal/backend"
	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/flow"
	"github.com/campusquest/companion/internal/handler/health"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type flowPath struct {
	FlowID string `path:"flowID"`
}

type namePath struct {
	Name string `path:"name"`
}

type listQuery struct {
	Refresh bool `query:"refresh" description:"Reload the list from the campus backend."`
}

type resp struct {
	status int
	body   any
	ctype  string
}

func okResp(body any) resp         { return resp{status: http.StatusOK, body: body} }
func createdResp(body any) resp    { return resp{status: http.StatusCreated, body: body} }
func errResp(status int) resp      { return resp{status: status, body: ErrorResponse{}} }
func streamResp(ctype string) resp { return resp{status: http.StatusOK, ctype: ctype} }
func emptyResp(status int) resp    { return resp{status: status} }

type operation struct {
	method, path, summary, description string
	request                            []any
	responses                          []resp
}

var operations = []operation{
	{http.MethodGet, "/healthz", "Health check", "Reports whether the challenge cache and the campus backend answer.",
		nil, []resp{okResp(health.Response{}), {status: http.StatusServiceUnavailable, body: health.Response{}}}},
	{http.MethodGet, "/metrics", "Prometheus metrics", "Exposition format.",
		nil, []resp{streamResp("text/plain")}},
	{http.MethodGet, "/auth/login", "Sign in", "Redirects to the backend's OAuth2 authorization endpoint.",
		nil, []resp{emptyResp(http.StatusFound)}},
	{http.MethodGet, "/auth/logout", "Sign out", "Page that posts a logout form to the backend on load.",
		nil, []resp{streamResp("text/html")}},

	{http.MethodGet, "/api/challenges", "List challenges", "Cached challenge list. Loaded from the backend when empty or on refresh.",
		[]any{listQuery{}}, []resp{okResp([]ChallengeResponse{}), errResp(http.StatusBadGateway)}},
	{http.MethodGet, "/api/challenges/{name}", "Get challenge", "One cached challenge.",
		[]any{namePath{}}, []resp{okResp(ChallengeResponse{}), errResp(http.StatusNotFound)}},

	{http.MethodPost, "/api/flows", "Open flow", "Opens a completion flow for a challenge and starts locating.",
		[]any{CreateFlowRequest{}}, []resp{createdResp(flow.View{}), errResp(http.StatusBadRequest), errResp(http.StatusNotFound), errResp(http.StatusConflict)}},
	{http.MethodGet, "/api/flows/{flowID}", "Get flow", "Current snapshot of the flow.",
		[]any{flowPath{}}, []resp{okResp(flow.View{}), errResp(http.StatusNotFound)}},
	{http.MethodDelete, "/api/flows/{flowID}", "Close flow", "Cancels any running step and releases camera, location watch and timers.",
		[]any{flowPath{}}, []resp{emptyResp(http.StatusNoContent), errResp(http.StatusNotFound)}},
	{http.MethodPost, "/api/flows/{flowID}/restart", "Restart flow", "Re-enters the flow from idle for the same challenge. Refused once the challenge is completed or locked.",
		[]any{flowPath{}}, []resp{okResp(flow.View{}), errResp(http.StatusNotFound), errResp(http.StatusConflict)}},
	{http.MethodPost, "/api/flows/{flowID}/location", "Push location", "Delivers a position fix or a platform location error.",
		[]any{flowPath{}, LocationRequest{}}, []resp{{status: http.StatusAccepted, body: LocationResponse{}}, errResp(http.StatusBadRequest)}},
	{http.MethodGet, "/api/flows/{flowID}/camera", "Camera feed", "WebSocket of binary JPEG or PNG camera frames.",
		[]any{flowPath{}}, []resp{emptyResp(http.StatusSwitchingProtocols)}},
	{http.MethodPost, "/api/flows/{flowID}/camera/error", "Report camera error", "The camera was denied or is unavailable.",
		[]any{flowPath{}, DeviceErrorRequest{}}, []resp{emptyResp(http.StatusAccepted), errResp(http.StatusBadRequest)}},
	{http.MethodGet, "/api/flows/{flowID}/overlay.png", "Detection overlay", "Transparent PNG with the last QR detection box.",
		[]any{flowPath{}}, []resp{streamResp("image/png"), errResp(http.StatusNotFound)}},
	{http.MethodPost, "/api/flows/{flowID}/photo", "Upload photo", "Body is raw JPEG/PNG bytes or a data URI.",
		[]any{flowPath{}}, []resp{okResp(flow.View{}), errResp(http.StatusBadRequest), errResp(http.StatusConflict)}},
	{http.MethodDelete, "/api/flows/{flowID}/photo", "Remove photo", "Drops the commemorative photo.",
		[]any{flowPath{}}, []resp{okResp(flow.View{}), errResp(http.StatusConflict)}},
	{http.MethodPost, "/api/flows/{flowID}/photo/capture", "Take picture", "Grabs one frame from the camera feed.",
		[]any{flowPath{}}, []resp{okResp(flow.View{}), errResp(http.StatusBadRequest), errResp(http.StatusConflict)}},
	{http.MethodPost, "/api/flows/{flowID}/photo/edit", "Begin edit", "Opens pan/zoom editing at the given display width.",
		[]any{flowPath{}, EditRequest{}}, []resp{okResp(flow.View{}), errResp(http.StatusConflict)}},
	{http.MethodPost, "/api/flows/{flowID}/photo/pan", "Pan", "Moves the image by display pixels.",
		[]any{flowPath{}, PanRequest{}}, []resp{okResp(flow.View{}), errResp(http.StatusConflict)}},
	{http.MethodPost, "/api/flows/{flowID}/photo/pinch", "Touch gesture", "One touch event: one point pans, two points pinch.",
		[]any{flowPath{}, PinchRequest{}}, []resp{okResp(flow.View{}), errResp(http.StatusConflict)}},
	{http.MethodPost, "/api/flows/{flowID}/photo/save", "Save edit", "Bakes the transform into the image at natural size.",
		[]any{flowPath{}}, []resp{okResp(flow.View{}), errResp(http.StatusConflict)}},
	{http.MethodPut, "/api/flows/{flowID}/note", "Set note", "Sets the completion note.",
		[]any{flowPath{}, NoteRequest{}}, []resp{okResp(flow.View{}), errResp(http.StatusConflict)}},
	{http.MethodPost, "/api/flows/{flowID}/submit", "Submit", "Sends the completion. A rejection returns the flow to commemorate with the backend's message.",
		[]any{flowPath{}}, []resp{okResp(flow.View{}), errResp(http.StatusConflict)}},
	{http.MethodGet, "/api/flows/{flowID}/events", "Flow events", "Server-Sent Events stream of flow snapshots.",
		[]any{flowPath{}}, []resp{streamResp("text/event-stream")}},

	{http.MethodGet, "/api/journal/{name}", "Get journal entry", "Backend pass-through.",
		[]any{namePath{}}, []resp{okResp(campus.JournalEntry{}), errResp(http.StatusNotFound)}},
	{http.MethodPut, "/api/journal/{name}", "Save journal note", "Backend pass-through.",
		[]any{namePath{}, JournalNoteRequest{}}, []resp{okResp(campus.JournalEntry{}), errResp(http.StatusBadRequest)}},
	{http.MethodDelete, "/api/journal/{name}", "Delete journal entry", "Backend pass-through.",
		[]any{namePath{}}, []resp{emptyResp(http.StatusNoContent)}},
	{http.MethodGet, "/api/journal/{name}/photo", "Get journal photo", "Backend pass-through.",
		[]any{namePath{}}, []resp{okResp(JournalPhotoRequest{}), errResp(http.StatusNotFound)}},
	{http.MethodPut, "/api/journal/{name}/photo", "Save journal photo", "Backend pass-through.",
		[]any{namePath{}, JournalPhotoRequest{}}, []resp{emptyResp(http.StatusNoContent), errResp(http.StatusBadRequest)}},
	{http.MethodDelete, "/api/journal/{name}/photo", "Delete journal photo", "Backend pass-through.",
		[]any{namePath{}}, []resp{emptyResp(http.StatusNoContent)}},
	{http.MethodGet, "/api/profile", "Profile", "Backend pass-through.",
		nil, []resp{okResp(campus.Profile{})}},
	{http.MethodGet, "/api/rewards", "Rewards", "Backend pass-through.",
		nil, []resp{okResp([]campus.Reward{})}},
	{http.MethodGet, "/api/leaderboard", "Leaderboard", "Backend pass-through.",
		nil, []resp{okResp([]campus.LeaderboardEntry{})}},
	{http.MethodPost, "/api/transactions", "Redeem reward", "Backend pass-through.",
		[]any{TransactionRequest{}}, []resp{okResp(backend.TransactionResponse{}), errResp(http.StatusBadRequest)}},
	{http.MethodGet, "/api/admin/challenges", "Sync admin challenges", "Reloads the cache from the admin listing so secrets are checked locally. Secrets are not returned.",
		nil, []resp{okResp([]ChallengeResponse{}), errResp(http.StatusBadGateway)}},
	{http.MethodPut, "/api/admin/challenges/{name}/geolocation", "Geotag challenge", "Stores the most accurate of the submitted fixes.",
		[]any{namePath{}, GeolocationRequest{}}, []resp{okResp(campus.LocationSample{}), errResp(http.StatusBadRequest)}},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Campus Companion API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Device-side companion for campus challenges: completion flows, device data ingestion and backend pass-through.")

	for _, o := range operations {
		oc, err := r.NewOperationContext(o.method, o.path)
		if err != nil {
			continue
		}
		oc.SetSummary(o.summary)
		oc.SetDescription(o.description)
		for _, req := range o.request {
			oc.AddReqStructure(req)
		}
		for _, rs := range o.responses {
			opts := []openapi.ContentOption{openapi.WithHTTPStatus(rs.status)}
			if rs.ctype != "" {
				opts = append(opts, openapi.WithContentType(rs.ctype))
			}
			oc.AddRespStructure(rs.body, opts...)
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
