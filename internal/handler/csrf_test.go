package handler_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/msomdec/accounts/internal/handler"
	"github.com/msomdec/accounts/internal/view"
)

const testCSRFToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func csrfProtected(t *testing.T) (http.Handler, *bool) {
	t.Helper()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if got := view.CSRFToken(r.Context()); got == "" {
			t.Error("expected CSRF token in context")
		}
	})
	return handler.CSRF(false, inner), &called
}

func TestCSRF_SafeMethodSetsCookie(t *testing.T) {
	h, called := csrfProtected(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/register/", nil))

	if !*called {
		t.Fatal("GET should reach the handler")
	}
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "csrftoken" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected csrftoken cookie")
	}
	if len(cookie.Value) != 64 {
		t.Fatalf("unexpected token length %d", len(cookie.Value))
	}
	if cookie.HttpOnly {
		t.Fatal("csrftoken cookie must be readable by scripts")
	}
}

func TestCSRF_ExistingCookieIsKept(t *testing.T) {
	h, _ := csrfProtected(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: testCSRFToken})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if len(w.Result().Cookies()) != 0 {
		t.Fatal("expected no new cookie when a valid one is present")
	}
}

func TestCSRF_UnsafeMethods(t *testing.T) {
	tests := []struct {
		name     string
		cookie   string
		field    string
		header   string
		wantCode int
	}{
		{"no cookie", "", testCSRFToken, "", http.StatusForbidden},
		{"no token", testCSRFToken, "", "", http.StatusForbidden},
		{"wrong token", testCSRFToken, strings.Repeat("f", 64), "", http.StatusForbidden},
		{"form field", testCSRFToken, testCSRFToken, "", http.StatusOK},
		{"header", testCSRFToken, "", testCSRFToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, called := csrfProtected(t)

			body := url.Values{"username": {"x"}}
			if tt.field != "" {
				body.Set("csrfmiddlewaretoken", tt.field)
			}
			req := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(body.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "csrftoken", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRFToken", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if *called != (tt.wantCode == http.StatusOK) {
				t.Fatalf("handler called = %v", *called)
			}
			if tt.wantCode == http.StatusForbidden && !strings.Contains(w.Body.String(), "CSRF verification failed") {
				t.Fatalf("unexpected body %q", w.Body.String())
			}
		})
	}
}
