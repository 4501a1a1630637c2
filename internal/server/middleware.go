package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campusquest/companion/internal/backend"
)

type ctxKey int

const (
	ctxKeyFlow ctxKey = iota
)

// flowMiddleware resolves {flowID} to an open session.
func flowMiddleware(flows *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			e, err := flows.Get(chi.URLParam(r, "flowID"))
			if err != nil {
				writeError(w, http.StatusNotFound, "flow not found")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyFlow, e)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// forwardCookie hands the caller's cookies to the backend client so calls
// run with the user's session.
func forwardCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := backend.WithCookie(r.Context(), r.Header.Get("Cookie"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func flowFrom(r *http.Request) *Flow {
	return r.Context().Value(ctxKeyFlow).(*Flow)
}
