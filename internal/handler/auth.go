package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/accounts/internal/domain"
	"github.com/msomdec/accounts/internal/form"
	"github.com/msomdec/accounts/internal/metrics"
	"github.com/msomdec/accounts/internal/service"
	"github.com/msomdec/accounts/internal/view"
)

const authCookieName = "auth_token"

// AuthHandler serves the register, login and logout views.
type AuthHandler struct {
	auth         *service.AuthService
	limiter      *service.TokenBucket
	metrics      *metrics.Metrics
	cookieSecure bool
}

// NewAuthHandler creates a new AuthHandler. limiter may be nil to disable
// rate limiting.
func NewAuthHandler(auth *service.AuthService, limiter *service.TokenBucket, m *metrics.Metrics, cookieSecure bool) *AuthHandler {
	return &AuthHandler{auth: auth, limiter: limiter, metrics: m, cookieSecure: cookieSecure}
}

// HandleRegisterPage renders an empty registration form.
// GET /register/
func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, view.RegisterPage(UserFromContext(r.Context()), form.NewUserCreationForm()))
}

// HandleRegister creates a user from the submitted form.
// POST /register/
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	f := form.BindUserCreationForm(r.PostForm)
	user, err := h.auth.Register(r.Context(), f)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			render(w, r, http.StatusUnprocessableEntity, view.RegisterPage(UserFromContext(r.Context()), f))
			return
		}
		serverError(w, r, "register user", err)
		return
	}

	h.metrics.ObserveRegistration()
	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, "/login/", http.StatusSeeOther)
}

// HandleCheckUsername patches the availability message under the username
// field of the register form.
// GET /register/check-username/
func (h *AuthHandler) HandleCheckUsername(w http.ResponseWriter, r *http.Request) {
	var signals struct {
		Username string `json:"username"`
	}
	if err := datastar.ReadSignals(r, &signals); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var available bool
	var msg string
	if username := form.NormalizeUsername(signals.Username); username != "" {
		var err error
		available, msg, err = h.auth.UsernameAvailable(r.Context(), username)
		if err != nil {
			serverError(w, r, "check username", err)
			return
		}
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.PatchElementTempl(
		view.UsernameStatus(available, msg),
		datastar.WithSelectorID(view.UsernameStatusID),
	); err != nil {
		slog.Error("patch username status", "error", err)
	}
}

// HandleLoginPage renders an empty login form.
// GET /login/
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	render(w, r, http.StatusOK, view.LoginPage(UserFromContext(r.Context()), form.NewAuthenticationForm(), next))
}

// HandleLogin checks the submitted credentials and sets the auth cookie.
// POST /login/
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	next := safeNext(r.PostForm.Get("next"))
	f := form.BindAuthenticationForm(r.PostForm)
	user, err := h.auth.AuthenticateForm(r.Context(), f)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			h.metrics.ObserveLogin(false)
			render(w, r, http.StatusUnprocessableEntity, view.LoginPage(UserFromContext(r.Context()), f, next))
			return
		}
		serverError(w, r, "authenticate user", err)
		return
	}

	token, err := h.auth.Login(r.Context(), user)
	if err != nil {
		serverError(w, r, "login user", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(service.TokenTTL.Seconds()),
	})
	rotateCSRFToken(w, h.cookieSecure)

	h.metrics.ObserveLogin(true)
	slog.Info("user logged in", "user_id", user.ID)

	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// HandleLogout clears the auth cookie.
// POST /logout/
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// allow applies the per-client rate limit, writing a 429 when it is exceeded.
func (h *AuthHandler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil || h.limiter.Allow(clientIP(r)) {
		return true
	}
	slog.Warn("rate limit exceeded", "path", r.URL.Path, "client", clientIP(r))
	w.Header().Set("Retry-After", "5")
	http.Error(w, "Too many attempts. Please wait a moment and try again.", http.StatusTooManyRequests)
	return false
}

// safeNext returns next if it is a local absolute path, otherwise "".
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return next
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
