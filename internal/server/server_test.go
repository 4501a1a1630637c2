package server

import (
	"context"
	"encoding/json"
	"image"
	"image/draw"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/campusquest/companion/internal/backend"
	"github.com/campusquest/companion/internal/campus"
	"github.com/campusquest/companion/internal/database"
	"github.com/campusquest/companion/internal/flow"
	"github.com/campusquest/companion/internal/handler/health"
	"github.com/campusquest/companion/internal/metrics"
	"github.com/campusquest/companion/internal/migrations"
	"github.com/campusquest/companion/internal/store"
)

const (
	testGeoTimeout  = 3 * time.Second
	testScanTimeout = 10 * time.Second
	testFrameRate   = 30
)

// fakeBackend records what the companion sends to the campus API.
type fakeBackend struct {
	mu          sync.Mutex
	challenges  []campus.Challenge
	listCalls   int
	adminCalls  int
	completions []backend.CompleteRequest
	complete    backend.CompleteResponse
	geotags     []backend.GeolocationRequest
	cookies     []string
}

func (f *fakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	// Player listings never carry verification secrets.
	r.Get("/api/challenges", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listCalls++
		f.cookies = append(f.cookies, r.Header.Get("Cookie"))
		list := make([]campus.Challenge, len(f.challenges))
		for i, c := range f.challenges {
			c.VerificationSecret = ""
			list[i] = c
		}
		json.NewEncoder(w).Encode(list)
	})
	r.Get("/api/admin/challenges", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.adminCalls++
		json.NewEncoder(w).Encode(f.challenges)
	})
	r.Post("/api/complete", func(w http.ResponseWriter, r *http.Request) {
		var req backend.CompleteRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.completions = append(f.completions, req)
		f.cookies = append(f.cookies, r.Header.Get("Cookie"))
		json.NewEncoder(w).Encode(f.complete)
	})
	r.Put("/api/admin/challenges/geolocation", func(w http.ResponseWriter, r *http.Request) {
		var req backend.GeolocationRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.geotags = append(f.geotags, req)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/api/journal/{name}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "name") != "clock-tower" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "No journal entry"})
			return
		}
		f.mu.Lock()
		f.cookies = append(f.cookies, r.Header.Get("Cookie"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(campus.JournalEntry{ChallengeName: "clock-tower", Note: "windy"})
	})
	r.Get("/api/rewards", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]campus.Reward{{ID: "r1", Name: "Mug", Cost: decimal.RequireFromString("12.50")}})
	})
	return r
}

func (f *fakeBackend) completionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completions)
}

type testEnv struct {
	router  http.Handler
	cache   *store.Challenges
	flows   *Registry
	clock   *clock.Mock
	backend *fakeBackend
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := migrations.Run(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cache := store.NewChallenges(db)

	fb := &fakeBackend{
		challenges: []campus.Challenge{
			{Name: "clock-tower", Category: "landmarks", Status: campus.StatusAvailable, VerificationSecret: "TOWER-1868", Reward: decimal.NewFromInt(50)},
			{Name: "observatory", Category: "science", Status: campus.StatusLocked, VerificationSecret: "STARS"},
		},
		complete: backend.CompleteResponse{Success: true},
	}
	upstream := httptest.NewServer(fb.routes())
	t.Cleanup(upstream.Close)

	api, err := backend.New(upstream.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("backend client: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock := clock.NewMock()
	m := metrics.New(nil)
	broker := NewBroker()
	flows := NewRegistry(FlowConfig{
		Submitter: api,
		Statuses:  cache,
		Timeouts:  flow.Timeouts{Geo: testGeoTimeout, Scan: testScanTimeout, PhotoReady: time.Second},
		FrameRate: testFrameRate,
		Clock:     mock,
	}, broker, m, logger)
	t.Cleanup(func() { flows.Close(context.Background()) })

	router := NewRouter(Deps{
		Logger:      logger,
		Cache:       cache,
		Backend:     api,
		Flows:       flows,
		Broker:      broker,
		Metrics:     m,
		Health:      map[string]health.Checker{"cache": health.CheckFunc(cache.Ping)},
		OAuthClient: "campus",
	})

	return &testEnv{router: router, cache: cache, flows: flows, clock: mock, backend: fb, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Cookie", "SESSION=abc123")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

// openFlow loads the challenge list and opens a flow for name.
func (e *testEnv) openFlow(t *testing.T, name, variant string) flow.View {
	t.Helper()
	if rec := e.do(t, http.MethodGet, "/api/challenges", ""); rec.Code != http.StatusOK {
		t.Fatalf("list challenges: status %d", rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/api/flows", `{"challenge":"`+name+`","variant":"`+variant+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("open flow: status %d body %s", rec.Code, rec.Body)
	}
	return decodeBody[flow.View](t, rec)
}

func (e *testEnv) flowState(t *testing.T, id string) flow.View {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/flows/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get flow: status %d", rec.Code)
	}
	return decodeBody[flow.View](t, rec)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeBackend) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeBackend) cookie(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.cookies) {
		return ""
	}
	return f.cookies[i]
}

func blankImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return img
}
