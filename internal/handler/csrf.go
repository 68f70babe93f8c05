package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/msomdec/accounts/internal/view"
)

const (
	csrfCookieName = "csrftoken"
	csrfFormField  = "csrfmiddlewaretoken"
	csrfHeaderName = "X-CSRFToken"
	csrfTokenBytes = 32
	csrfCookieAge  = 365 * 24 * 60 * 60
)

// CSRF implements double-submit cookie protection. Every response carries a
// csrftoken cookie; unsafe methods must echo its value in the
// csrfmiddlewaretoken form field or the X-CSRFToken header.
func CSRF(cookieSecure bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(csrfCookieName); err == nil && len(c.Value) == csrfTokenBytes*2 {
			token = c.Value
		}

		if !isSafeMethod(r.Method) {
			if token == "" || !tokensMatch(token, submittedCSRFToken(r)) {
				slog.Warn("csrf verification failed", "method", r.Method, "path", r.URL.Path)
				http.Error(w, "CSRF verification failed. Request aborted.", http.StatusForbidden)
				return
			}
		}

		if token == "" {
			token = newCSRFToken()
			setCSRFCookie(w, token, cookieSecure)
		}

		next.ServeHTTP(w, r.WithContext(view.WithCSRFToken(r.Context(), token)))
	})
}

// rotateCSRFToken replaces the csrftoken cookie with a fresh value. It is
// called when the session identity changes so a token seen before login is
// useless afterwards.
func rotateCSRFToken(w http.ResponseWriter, cookieSecure bool) {
	setCSRFCookie(w, newCSRFToken(), cookieSecure)
}

func setCSRFCookie(w http.ResponseWriter, token string, cookieSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfCookieAge,
		Secure:   cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func submittedCSRFToken(r *http.Request) string {
	if v := r.Header.Get(csrfHeaderName); v != "" {
		return v
	}
	// PostFormValue parses the body; handlers read r.PostForm afterwards.
	return r.PostFormValue(csrfFormField)
}

func tokensMatch(a, b string) bool {
	return b != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func newCSRFToken() string {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: read random: " + err.Error())
	}
	return hex.EncodeToString(b)
}
