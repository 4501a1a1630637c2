package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goqrcode "github.com/skip2/go-qrcode"
	"nhooyr.io/websocket"

	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/flow"
)

// locate pushes fixes over HTTP and lets the sampling window elapse.
func (e *testEnv) locate(t *testing.T, id string, bodies ...string) {
	t.Helper()
	f, err := e.flows.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "position watch", func() bool { return f.locator.Active() == 1 })
	for _, b := range bodies {
		rec := e.do(t, http.MethodPost, "/api/flows/"+id+"/location", b)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("push location: status %d body %s", rec.Code, rec.Body)
		}
	}
	e.clock.Add(testGeoTimeout)
	waitFor(t, "scanning", func() bool { return e.flowState(t, id).State == flow.Scanning })
}

// showCode streams a QR frame over the camera WebSocket and advances the
// frame clock until the scanner reports a result.
func (e *testEnv) showCode(t *testing.T, id, code string) {
	t.Helper()
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/flows/"+id+"/camera", nil)
	if err != nil {
		t.Fatalf("dial camera feed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	png, err := goqrcode.Encode(code, goqrcode.Medium, 256)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, png); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	for i := 0; i < 100; i++ {
		if e.flowState(t, id).State != flow.Scanning {
			return
		}
		e.clock.Add(time.Second / testFrameRate)
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scanner never left the qr step")
}

func TestFlowHappyPath(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "match-secret")
	if view.State != flow.Locating {
		t.Fatalf("state = %s, want location", view.State)
	}

	env.locate(t, view.ID,
		`{"latitude":42.4470,"longitude":-76.4840,"accuracy":25}`,
		`{"latitude":42.4475,"longitude":-76.4845,"accuracy":8}`,
		`{"latitude":42.4480,"longitude":-76.4850,"accuracy":12}`,
	)
	env.showCode(t, view.ID, "TOWER-1868")

	got := env.flowState(t, view.ID)
	if got.State != flow.Commemorating || got.Code != "TOWER-1868" {
		t.Fatalf("after scan: %+v", got)
	}
	if got.Location == nil || got.Location.Accuracy != 8 {
		t.Fatalf("location = %+v, want the accuracy-8 fix", got.Location)
	}
	f, _ := env.flows.Get(view.ID)
	if n := f.camera.OpenStreams(); n != 0 {
		t.Fatalf("camera streams = %d after scan, want 0", n)
	}

	rec := env.do(t, http.MethodGet, "/api/flows/"+view.ID+"/overlay.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("overlay: status %d type %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	rec = env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/submit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", rec.Code, rec.Body)
	}
	done := decodeBody[flow.View](t, rec)
	if done.State != flow.Idle || !done.Completed {
		t.Fatalf("after submit: %+v", done)
	}

	env.backend.mu.Lock()
	sent := env.backend.completions[0]
	env.backend.mu.Unlock()
	if sent.ChallengeName != "clock-tower" || sent.VerificationCode != "TOWER-1868" {
		t.Fatalf("sent %+v", sent)
	}
	if sent.ImageData != "" || sent.Note != nil {
		t.Fatalf("image %q note %v, want empty and null", sent.ImageData, sent.Note)
	}
	if sent.UserLocationAccuracy == nil || *sent.UserLocationAccuracy != 8 || *sent.UserLatitude != 42.4475 {
		t.Fatalf("location not forwarded: %+v", sent)
	}
	if c := env.backend.cookie(1); c != "SESSION=abc123" {
		t.Fatalf("completion cookie = %q", c)
	}

	c, err := env.cache.Get(context.Background(), "clock-tower")
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != campus.StatusCompleted {
		t.Fatalf("cached status = %s, want completed", c.Status)
	}
}

func TestFlowRestartAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":5}`)
	env.showCode(t, view.ID, "TOWER-1868")

	if rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/submit", ""); rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d body %s", rec.Code, rec.Body)
	}

	rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/restart", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("restart: status %d, want 409", rec.Code)
	}
	if got := env.flowState(t, view.ID); got.State != flow.Idle || !got.Completed {
		t.Fatalf("after refused restart: %+v", got)
	}
	if n := env.backend.completionCount(); n != 1 {
		t.Fatalf("completions = %d, want 1", n)
	}
}

func TestFlowRestartChecksCachedStatus(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")
	f, _ := env.flows.Get(view.ID)
	f.session.Close()
	if err := env.cache.MarkCompleted(context.Background(), "clock-tower"); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/restart", ""); rec.Code != http.StatusConflict {
		t.Fatalf("restart: status %d, want 409", rec.Code)
	}
	if got := env.flowState(t, view.ID); got.State != flow.Idle {
		t.Fatalf("state = %s, want idle", got.State)
	}
}

func TestFlowLateDenialDoesNotFailRetry(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":5}`)

	rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/location", `{"error":"denied"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[LocationResponse](t, rec); got.Delivered {
		t.Fatal("denial delivered with no position watch open")
	}

	f, _ := env.flows.Get(view.ID)
	f.session.Close()

	rec = env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/restart", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("restart: status %d body %s", rec.Code, rec.Body)
	}
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":4}`)
	if got := env.flowState(t, view.ID); got.Error != "" {
		t.Fatalf("error after retry = %q", got.Error)
	}
}

func TestFlowSecretsCheckedAfterAdminSync(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/admin/challenges", ""); rec.Code != http.StatusOK {
		t.Fatalf("sync: status %d", rec.Code)
	}
	view := env.openFlow(t, "clock-tower", "match-secret")
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":5}`)
	env.showCode(t, view.ID, "NOT-THE-TOWER")

	got := env.flowState(t, view.ID)
	if got.State != flow.Idle || got.Error != flow.UserMessage(flow.ErrCodeMismatch) {
		t.Fatalf("after wrong code: %+v", got)
	}
	if env.backend.completionCount() != 0 {
		t.Fatal("no submission expected")
	}
}

func TestFlowLocationDenied(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")

	rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/location", `{"error":"denied"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	waitFor(t, "idle", func() bool { return env.flowState(t, view.ID).State == flow.Idle })

	got := env.flowState(t, view.ID)
	if got.Error == "" {
		t.Fatal("expected a user-visible error")
	}
	if env.backend.completionCount() != 0 {
		t.Fatal("no submission expected")
	}
}

func TestFlowScanTimeout(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":5}`)

	f, _ := env.flows.Get(view.ID)
	f.camera.SetFrame(blankImage())
	waitFor(t, "camera stream", func() bool { return f.camera.OpenStreams() == 1 })

	// The scan timer is armed just after the stream opens.
	waitFor(t, "idle", func() bool {
		env.clock.Add(testScanTimeout)
		return env.flowState(t, view.ID).State == flow.Idle
	})

	if n := f.camera.OpenStreams(); n != 0 {
		t.Fatalf("camera streams = %d after timeout, want 0", n)
	}
	if got := env.flowState(t, view.ID); got.Error == "" {
		t.Fatal("expected timeout message")
	}
}

func TestFlowRejectionKeepsNote(t *testing.T) {
	env := newTestEnv(t)
	env.backend.complete.Success = false
	env.backend.complete.Message = "Invalid code"

	view := env.openFlow(t, "clock-tower", "any-code")
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":5}`)
	env.showCode(t, view.ID, "anything")

	if rec := env.do(t, http.MethodPut, "/api/flows/"+view.ID+"/note", `{"note":"made it"}`); rec.Code != http.StatusOK {
		t.Fatalf("note: status %d", rec.Code)
	}
	png, _ := goqrcode.Encode("photo", goqrcode.Low, 64)
	if rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/photo", string(png)); rec.Code != http.StatusOK {
		t.Fatalf("photo: status %d body %s", rec.Code, rec.Body)
	}

	rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/submit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: status %d", rec.Code)
	}
	got := decodeBody[flow.View](t, rec)
	if got.State != flow.Commemorating || got.Error != "Invalid code" {
		t.Fatalf("after rejection: state %s error %q", got.State, got.Error)
	}
	if got.Note != "made it" || !strings.HasPrefix(got.Image, "data:image/jpeg;base64,") {
		t.Fatalf("work lost: note %q image %.30q", got.Note, got.Image)
	}

	env.backend.mu.Lock()
	sent := env.backend.completions[0]
	env.backend.mu.Unlock()
	if sent.Note == nil || *sent.Note != "made it" || strings.HasPrefix(sent.ImageData, "data:") || sent.ImageData == "" {
		t.Fatalf("sent note %v image prefix %.10q", sent.Note, sent.ImageData)
	}

	c, _ := env.cache.Get(context.Background(), "clock-tower")
	if c.Status != campus.StatusAvailable {
		t.Fatalf("status = %s, want available after rejection", c.Status)
	}
}

func TestFlowPhotoEditing(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":5}`)
	env.showCode(t, view.ID, "anything")
	base := "/api/flows/" + view.ID

	if rec := env.do(t, http.MethodPost, base+"/photo/edit", `{"displayWidth":100}`); rec.Code != http.StatusConflict {
		t.Fatalf("edit without photo: status %d, want 409", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, base+"/photo/capture", ""); rec.Code != http.StatusOK {
		t.Fatalf("capture: status %d body %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, http.MethodPost, base+"/photo/edit", `{"displayWidth":128}`); rec.Code != http.StatusOK {
		t.Fatalf("edit: status %d body %s", rec.Code, rec.Body)
	}

	steps := []string{
		`{"phase":"start","points":[{"x":10,"y":10},{"x":30,"y":10}]}`,
		`{"phase":"move","points":[{"x":0,"y":10},{"x":200,"y":10}]}`,
	}
	var got flow.View
	for _, s := range steps {
		rec := env.do(t, http.MethodPost, base+"/photo/pinch", s)
		if rec.Code != http.StatusOK {
			t.Fatalf("pinch: status %d body %s", rec.Code, rec.Body)
		}
		got = decodeBody[flow.View](t, rec)
	}
	if got.Editing == nil || got.Editing.Scale != 3 {
		t.Fatalf("editing = %+v, want scale clamped to 3", got.Editing)
	}
	env.do(t, http.MethodPost, base+"/photo/pinch", `{"phase":"end"}`)

	if rec := env.do(t, http.MethodPost, base+"/photo/pan", `{"dx":5,"dy":-5}`); rec.Code != http.StatusOK {
		t.Fatalf("pan: status %d", rec.Code)
	}
	rec := env.do(t, http.MethodPost, base+"/photo/save", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("save: status %d body %s", rec.Code, rec.Body)
	}
	got = decodeBody[flow.View](t, rec)
	if got.Editing != nil || got.Image == "" {
		t.Fatalf("after save: editing %+v image %d bytes", got.Editing, len(got.Image))
	}

	if rec := env.do(t, http.MethodDelete, base+"/photo", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear: status %d", rec.Code)
	}
	if got := env.flowState(t, view.ID); got.Image != "" {
		t.Fatal("image not cleared")
	}
}

func TestFlowCloseReleasesDevices(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")
	env.locate(t, view.ID, `{"latitude":1,"longitude":2,"accuracy":5}`)

	f, _ := env.flows.Get(view.ID)
	waitFor(t, "camera stream", func() bool { return f.camera.OpenStreams() == 1 })

	if rec := env.do(t, http.MethodDelete, "/api/flows/"+view.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if n := f.camera.OpenStreams(); n != 0 {
		t.Fatalf("camera streams = %d after close, want 0", n)
	}
	if n := f.locator.Active(); n != 0 {
		t.Fatalf("watches = %d after close, want 0", n)
	}
	if rec := env.do(t, http.MethodGet, "/api/flows/"+view.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get closed flow: status %d, want 404", rec.Code)
	}

	c, _ := env.cache.Get(context.Background(), "clock-tower")
	if c.Status != campus.StatusAvailable {
		t.Fatalf("status = %s, want available", c.Status)
	}

	reopened := env.openFlow(t, "clock-tower", "any-code")
	if reopened.ID == view.ID || reopened.State != flow.Locating {
		t.Fatalf("reopened %+v", reopened)
	}
}

func TestFlowRejectsOutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")
	base := "/api/flows/" + view.ID

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPut, base + "/note", `{"note":"early"}`, http.StatusConflict},
		{http.MethodPost, base + "/submit", "", http.StatusConflict},
		{http.MethodPost, base + "/restart", "", http.StatusConflict},
		{http.MethodPost, base + "/photo/save", "", http.StatusConflict},
		{http.MethodPost, base + "/location", `{"latitude":91,"longitude":0,"accuracy":1}`, http.StatusBadRequest},
		{http.MethodPost, base + "/location", `{"latitude":0,"longitude":0,"accuracy":-1}`, http.StatusBadRequest},
		{http.MethodPost, base + "/camera/error", `{"error":"broken"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/flows/missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if rec := env.do(t, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestFlowCameraDenied(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")

	if rec := env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/camera/error", `{"error":"denied"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	f, _ := env.flows.Get(view.ID)
	waitFor(t, "position watch", func() bool { return f.locator.Active() == 1 })
	env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/location", `{"latitude":1,"longitude":2,"accuracy":5}`)
	env.clock.Add(testGeoTimeout)

	waitFor(t, "idle", func() bool { return env.flowState(t, view.ID).State == flow.Idle })
	if got := env.flowState(t, view.ID); got.Error == "" {
		t.Fatal("expected camera error message")
	}
}

func TestFlowEventsStream(t *testing.T) {
	env := newTestEnv(t)
	view := env.openFlow(t, "clock-tower", "any-code")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/flows/"+view.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	env.do(t, http.MethodPost, "/api/flows/"+view.ID+"/location", `{"error":"denied"}`)

	var seen bytes.Buffer
	buf := make([]byte, 4096)
	for !strings.Contains(seen.String(), `"state":"idle"`) {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("read stream: %v (got %q)", err, seen.String())
		}
		seen.Write(buf[:n])
	}
	if !strings.Contains(seen.String(), `"state":"location"`) {
		t.Fatalf("initial snapshot missing: %q", seen.String())
	}

	env.do(t, http.MethodDelete, "/api/flows/"+view.ID, "")
	for !strings.Contains(seen.String(), "event: closed") {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		seen.Write(buf[:n])
	}
}
