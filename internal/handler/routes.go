package handler

import (
	"net/http"
	"strings"

	"github.com/msomdec/accounts/internal/metrics"
	"github.com/msomdec/accounts/internal/service"
)

// RegisterRoutes sets up all HTTP routes on the given mux.
//
// Page routes end in a slash. The slashless form of each is registered as a
// permanent redirect to the canonical path.
func RegisterRoutes(mux *http.ServeMux, auth *service.AuthService, limiter *service.TokenBucket, m *metrics.Metrics, cookieSecure bool) {
	authHandler := NewAuthHandler(auth, limiter, m, cookieSecure)
	adminHandler := NewAdminHandler(auth)

	mux.HandleFunc("GET /healthz", HandleHealthz)
	mux.Handle("GET /metrics", m.Handler())

	mux.HandleFunc("GET /{$}", HandleHome)

	appendSlash(mux, "/register/")
	mux.HandleFunc("GET /register/{$}", authHandler.HandleRegisterPage)
	mux.HandleFunc("POST /register/{$}", authHandler.HandleRegister)

	appendSlash(mux, "/register/check-username/")
	mux.HandleFunc("GET /register/check-username/{$}", authHandler.HandleCheckUsername)

	appendSlash(mux, "/login/")
	mux.HandleFunc("GET /login/{$}", authHandler.HandleLoginPage)
	mux.HandleFunc("POST /login/{$}", authHandler.HandleLogin)

	appendSlash(mux, "/logout/")
	mux.HandleFunc("POST /logout/{$}", authHandler.HandleLogout)

	appendSlash(mux, "/admin/")
	mux.Handle("GET /admin/{$}", RequireStaff(http.HandlerFunc(adminHandler.HandleIndex)))

	mux.HandleFunc("/", HandleNotFound)
}

// Wrap applies the middleware shared by every route. Instrument sits
// directly on the mux so it sees the matched pattern.
func Wrap(mux http.Handler, auth *service.AuthService, m *metrics.Metrics, cookieSecure bool) http.Handler {
	h := Instrument(m, mux)
	h = OptionalAuth(auth, h)
	h = CSRF(cookieSecure, h)
	h = SecurityHeaders(h)
	return RequestLogger(h)
}

// appendSlash redirects requests for path without its trailing slash.
// GET and HEAD get a 301; other methods get a 308 so the body is resent.
func appendSlash(mux *http.ServeMux, path string) {
	mux.HandleFunc(strings.TrimSuffix(path, "/"), func(w http.ResponseWriter, r *http.Request) {
		target := path
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		code := http.StatusMovedPermanently
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			code = http.StatusPermanentRedirect
		}
		http.Redirect(w, r, target, code)
	})
}
