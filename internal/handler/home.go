package handler

import (
	"net/http"

	"github.com/msomdec/accounts/internal/view"
)

// HandleHome renders the home page.
func HandleHome(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, view.HomePage(UserFromContext(r.Context())))
}

// HandleNotFound renders the 404 page for any unrouted path.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusNotFound, view.NotFoundPage(UserFromContext(r.Context()), r.URL.Path))
}
