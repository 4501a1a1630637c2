package server

import (
	"html/template"
	"net/http"

	"github.com/campusquest/companion/internal/backend"
)

var logoutPage = template.Must(template.New("logout").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Signing out</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.}}">
<noscript><button type="submit">Sign out</button></noscript>
</form>
</body>
</html>
`))

// handleLogin sends the browser to the backend's OAuth2 authorization
// entry point.
func handleLogin(api *backend.Client, client string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, api.LoginURL(client), http.StatusFound)
	}
}

// handleLogout renders a form that POSTs to the backend's logout endpoint
// as soon as it loads, so the backend clears its own session cookie.
func handleLogout(api *backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		logoutPage.Execute(w, api.LogoutURL())
	}
}
