package handler

import (
	"net/http"
	"strconv"

	"github.com/msomdec/accounts/internal/service"
	"github.com/msomdec/accounts/internal/view"
)

const adminPageSize = 25

// AdminHandler serves the site administration pages.
type AdminHandler struct {
	auth *service.AuthService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(auth *service.AuthService) *AdminHandler {
	return &AdminHandler{auth: auth}
}

// HandleIndex lists registered users, adminPageSize per page.
// GET /admin/?page=N
func (h *AdminHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	total, err := h.auth.CountUsers(r.Context())
	if err != nil {
		serverError(w, r, "count users", err)
		return
	}
	pages := max(1, (total+adminPageSize-1)/adminPageSize)
	page = min(page, pages)

	users, err := h.auth.ListUsers(r.Context(), adminPageSize, (page-1)*adminPageSize)
	if err != nil {
		serverError(w, r, "list users", err)
		return
	}

	render(w, r, http.StatusOK, view.AdminPage(UserFromContext(r.Context()), view.UserPage{
		Users:   users,
		Page:    page,
		Pages:   pages,
		Total:   total,
		PerPage: adminPageSize,
	}))
}
