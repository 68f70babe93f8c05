package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/msomdec/accounts/internal/handler"
)

func TestHandleHome(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.get(t, "/")
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(body, "Welcome") {
		t.Fatalf("expected home page, got:\n%s", body)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected security headers on the home page")
	}
}

func TestHandleNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	w := httptest.NewRecorder()

	handler.HandleNotFound(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
