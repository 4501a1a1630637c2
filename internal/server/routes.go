package server

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/campusquest/companion/internal/handler/health"
)

func addRoutes(r chi.Router, d Deps) {
	logger := d.Logger

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Campus Companion API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, d.Health).Routes())
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Get("/auth/login", handleLogin(d.Backend, d.OAuthClient))
	r.Get("/auth/logout", handleLogout(d.Backend))

	r.Route("/api", func(r chi.Router) {
		r.Use(forwardCookie)

		r.Get("/challenges", handleListChallenges(logger, d.Cache, d.Backend))
		r.Get("/challenges/{name}", handleGetChallenge(d.Cache))

		r.Post("/flows", handleCreateFlow(logger, d.Cache, d.Flows))
		r.Route("/flows/{flowID}", func(r chi.Router) {
			r.Use(flowMiddleware(d.Flows))
			r.Get("/", handleGetFlow())
			r.Delete("/", handleDeleteFlow(d.Flows))
			r.Post("/restart", handleRestartFlow(logger, d.Cache))
			r.Get("/events", handleFlowEvents(d.Broker))

			r.Post("/location", handlePushLocation())
			r.Get("/camera", handleCameraFeed(logger))
			r.Post("/camera/error", handleCameraError())
			r.Get("/overlay.png", handleOverlay())

			r.Post("/photo", handleUploadPhoto())
			r.Delete("/photo", handleClearPhoto())
			r.Post("/photo/capture", handleCapturePhoto())
			r.Post("/photo/edit", handleBeginEdit())
			r.Post("/photo/pan", handlePan())
			r.Post("/photo/pinch", handlePinch())
			r.Post("/photo/save", handleSaveEdit())

			r.Put("/note", handleSetNote())
			r.Post("/submit", handleSubmit())
		})

		r.Route("/journal/{name}", func(r chi.Router) {
			r.Get("/", handleGetJournal(d.Backend))
			r.Put("/", handlePutJournal(d.Backend))
			r.Delete("/", handleDeleteJournal(d.Backend))
			r.Get("/photo", handleGetJournalPhoto(d.Backend))
			r.Put("/photo", handlePutJournalPhoto(d.Backend))
			r.Delete("/photo", handleDeleteJournalPhoto(d.Backend))
		})

		r.Get("/profile", handleProfile(d.Backend))
		r.Get("/rewards", handleRewards(d.Backend))
		r.Get("/leaderboard", handleLeaderboard(d.Backend))
		r.Post("/transactions", handleRedeem(d.Backend))

		r.Get("/admin/challenges", handleSyncAdminChallenges(logger, d.Cache, d.Backend))
		r.Put("/admin/challenges/{name}/geolocation", handleSetGeolocation(logger, d.Backend))
	})

	if d.UIDir != "" {
		if info, err := os.Stat(d.UIDir); err == nil && info.IsDir() {
			logger.Info("serving UI", "dir", d.UIDir)
			r.NotFound(handleUI(d.UIDir))
		}
	}
}
