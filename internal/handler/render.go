package handler

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
)

// render writes a full HTML page with the given status.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render page", "path", r.URL.Path, "error", err)
	}
}

// serverError logs err and sends a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "error", err, "request_id", RequestIDFromContext(r.Context()))
	http.Error(w, "An unexpected error occurred. Please try again.", http.StatusInternalServerError)
}
