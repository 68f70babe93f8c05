package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/msomdec/accounts/internal/handler"
	"github.com/msomdec/accounts/internal/metrics"
	"github.com/msomdec/accounts/internal/repository/sqlite"
	"github.com/msomdec/accounts/internal/service"
)

type testServer struct {
	*httptest.Server
	auth   *service.AuthService
	db     *sqlite.DB
	client *http.Client
}

// newTestServer starts the full handler stack. The client keeps cookies and
// does not follow redirects.
func newTestServer(t *testing.T, limiter *service.TokenBucket) *testServer {
	t.Helper()
	auth, db := newTestAuthService(t)

	mux := http.NewServeMux()
	m := metrics.New()
	handler.RegisterRoutes(mux, auth, limiter, m, false)
	srv := httptest.NewServer(handler.Wrap(mux, auth, m, false))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testServer{Server: srv, auth: auth, db: db, client: client}
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := ts.client.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

// post submits a form with the CSRF token from the client's cookie jar,
// fetching a page first if the jar has none yet.
func (ts *testServer) post(t *testing.T, path string, values url.Values) (*http.Response, string) {
	t.Helper()
	token := ts.csrfToken(t)
	if token == "" {
		ts.get(t, "/")
		token = ts.csrfToken(t)
	}
	values.Set("csrfmiddlewaretoken", token)

	resp, err := ts.client.PostForm(ts.URL+path, values)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(t, resp)
}

func (ts *testServer) csrfToken(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(ts.URL)
	for _, c := range ts.client.Jar.Cookies(u) {
		if c.Name == "csrftoken" {
			return c.Value
		}
	}
	return ""
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

func expectRedirect(t *testing.T, resp *http.Response, code int, location string) {
	t.Helper()
	expectStatus(t, resp, code)
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

func TestIntegration_RegisterLoginFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	// GET renders an empty form.
	resp, body := ts.get(t, "/register/")
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(body, `name="password2"`) || strings.Contains(body, `class="errorlist"`) {
		t.Fatalf("expected an empty register form, got:\n%s", body)
	}

	// Invalid data re-renders the bound form with errors.
	resp, body = ts.post(t, "/register/", url.Values{
		"username":  {"alice"},
		"password1": {"correct-horse-42"},
		"password2": {"different-horse-42"},
	})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if !strings.Contains(body, "The two password fields didn’t match.") {
		t.Fatalf("expected mismatch error, got:\n%s", body)
	}
	if !strings.Contains(body, `value="alice"`) {
		t.Fatal("expected submitted username to be kept")
	}
	if strings.Contains(body, "correct-horse-42") {
		t.Fatal("passwords must not be echoed back")
	}

	// Valid data creates the user and redirects to login.
	resp, _ = ts.post(t, "/register/", url.Values{
		"username":  {"alice"},
		"password1": {"correct-horse-42"},
		"password2": {"correct-horse-42"},
	})
	expectRedirect(t, resp, http.StatusSeeOther, "/login/")

	if _, err := ts.auth.Authenticate(context.Background(), "alice", "correct-horse-42"); err != nil {
		t.Fatalf("registered user cannot authenticate: %v", err)
	}

	// Registering the same name again reports the duplicate.
	resp, body = ts.post(t, "/register/", url.Values{
		"username":  {"alice"},
		"password1": {"correct-horse-42"},
		"password2": {"correct-horse-42"},
	})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if !strings.Contains(body, "A user with that username already exists.") {
		t.Fatalf("expected duplicate error, got:\n%s", body)
	}

	// GET login renders an empty form.
	resp, body = ts.get(t, "/login/")
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(body, `name="password"`) || strings.Contains(body, `class="errorlist"`) {
		t.Fatalf("expected an empty login form, got:\n%s", body)
	}

	// Wrong password re-renders with the non-field error.
	resp, body = ts.post(t, "/login/", url.Values{"username": {"alice"}, "password": {"wrong-horse-42"}})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if !strings.Contains(body, "Please enter a correct username and password.") {
		t.Fatalf("expected login error, got:\n%s", body)
	}

	// Valid credentials redirect home with the auth cookie set.
	resp, _ = ts.post(t, "/login/", url.Values{"username": {"alice"}, "password": {"correct-horse-42"}})
	expectRedirect(t, resp, http.StatusSeeOther, "/")

	resp, body = ts.get(t, "/")
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(body, "Hello, alice!") {
		t.Fatalf("expected greeting for logged-in user, got:\n%s", body)
	}

	// Logout clears the session.
	resp, _ = ts.post(t, "/logout/", url.Values{})
	expectRedirect(t, resp, http.StatusSeeOther, "/")

	_, body = ts.get(t, "/")
	if strings.Contains(body, "Hello, alice!") {
		t.Fatal("expected to be logged out")
	}
}

func TestIntegration_LoginRedirectsToNext(t *testing.T) {
	ts := newTestServer(t, nil)
	mustRegister(t, ts.auth, "bob", "correct-horse-42")

	resp, body := ts.get(t, "/login/?next=/admin/")
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(body, `name="next" value="/admin/"`) {
		t.Fatalf("expected next to be carried in the form, got:\n%s", body)
	}

	resp, _ = ts.post(t, "/login/", url.Values{
		"username": {"bob"},
		"password": {"correct-horse-42"},
		"next":     {"/admin/"},
	})
	expectRedirect(t, resp, http.StatusSeeOther, "/admin/")
}

func TestIntegration_LoginIgnoresOffsiteNext(t *testing.T) {
	ts := newTestServer(t, nil)
	mustRegister(t, ts.auth, "carol", "correct-horse-42")

	for _, next := range []string{"https://evil.example/", "//evil.example/", `/\evil.example`} {
		resp, _ := ts.post(t, "/login/", url.Values{
			"username": {"carol"},
			"password": {"correct-horse-42"},
			"next":     {next},
		})
		expectRedirect(t, resp, http.StatusSeeOther, "/")
	}
}

func TestIntegration_Admin(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()

	mustRegister(t, ts.auth, "member", "correct-horse-42")
	if _, err := ts.auth.CreateSuperuser(ctx, "root", "correct-horse-42"); err != nil {
		t.Fatalf("CreateSuperuser: %v", err)
	}

	// Anonymous users are sent to login.
	resp, _ := ts.get(t, "/admin/")
	expectRedirect(t, resp, http.StatusSeeOther, "/login/?next=%2Fadmin%2F")

	// Non-staff users are sent to login too.
	resp, _ = ts.post(t, "/login/", url.Values{"username": {"member"}, "password": {"correct-horse-42"}})
	expectRedirect(t, resp, http.StatusSeeOther, "/")
	resp, _ = ts.get(t, "/admin/")
	expectRedirect(t, resp, http.StatusSeeOther, "/login/?next=%2Fadmin%2F")

	// Staff see the user list.
	resp, _ = ts.post(t, "/login/", url.Values{"username": {"root"}, "password": {"correct-horse-42"}})
	expectRedirect(t, resp, http.StatusSeeOther, "/")
	resp, body := ts.get(t, "/admin/")
	expectStatus(t, resp, http.StatusOK)
	for _, want := range []string{"Site administration", "member", "root", "Users (2)"} {
		if !strings.Contains(body, want) {
			t.Fatalf("admin page missing %q:\n%s", want, body)
		}
	}

	// Out-of-range pages clamp to the last page.
	resp, _ = ts.get(t, "/admin/?page=99")
	expectStatus(t, resp, http.StatusOK)
}

func TestIntegration_TrailingSlashRedirects(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		path string
		want string
	}{
		{"/register", "/register/"},
		{"/login", "/login/"},
		{"/admin", "/admin/"},
		{"/login?next=/admin/", "/login/?next=/admin/"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := ts.get(t, tt.path)
			expectRedirect(t, resp, http.StatusMovedPermanently, tt.want)
		})
	}

	// POSTs keep their method and body across the redirect.
	resp, _ := ts.post(t, "/login", url.Values{})
	expectRedirect(t, resp, http.StatusPermanentRedirect, "/login/")
}

func TestIntegration_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.get(t, "/nope/<script>")
	expectStatus(t, resp, http.StatusNotFound)
	if !strings.Contains(body, "Page not found") {
		t.Fatalf("expected 404 page, got:\n%s", body)
	}
	if strings.Contains(body, "<script>") {
		t.Fatal("path must be escaped")
	}
}

func TestIntegration_CSRFRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := ts.client.PostForm(ts.URL+"/register/", url.Values{
		"username":  {"mallory"},
		"password1": {"correct-horse-42"},
		"password2": {"correct-horse-42"},
	})
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	readBody(t, resp)
	expectStatus(t, resp, http.StatusForbidden)

	if n, _ := ts.auth.CountUsers(context.Background()); n != 0 {
		t.Fatalf("expected no users to be created, got %d", n)
	}
}

func TestIntegration_RateLimit(t *testing.T) {
	limiter := service.NewTokenBucket(0.001, 2)
	t.Cleanup(limiter.Stop)
	ts := newTestServer(t, limiter)

	creds := url.Values{"username": {"nobody"}, "password": {"wrong-horse-42"}}
	for range 2 {
		resp, _ := ts.post(t, "/login/", creds)
		expectStatus(t, resp, http.StatusUnprocessableEntity)
	}
	resp, _ := ts.post(t, "/login/", creds)
	expectStatus(t, resp, http.StatusTooManyRequests)
}

func TestIntegration_CheckUsername(t *testing.T) {
	ts := newTestServer(t, nil)
	mustRegister(t, ts.auth, "taken", "correct-horse-42")

	check := func(username string) string {
		signals, _ := json.Marshal(map[string]string{"username": username})
		resp, body := ts.get(t, "/register/check-username/?datastar="+url.QueryEscape(string(signals)))
		expectStatus(t, resp, http.StatusOK)
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
			t.Fatalf("expected an event stream, got %q", ct)
		}
		return body
	}

	body := check("taken")
	if !strings.Contains(body, "A user with that username already exists.") || !strings.Contains(body, `class="bad"`) {
		t.Fatalf("expected taken username to be reported, got:\n%s", body)
	}

	body = check("fresh")
	if !strings.Contains(body, "Username is available.") || !strings.Contains(body, `class="ok"`) {
		t.Fatalf("expected fresh username to be available, got:\n%s", body)
	}

	body = check("bad name!")
	if !strings.Contains(body, `class="bad"`) {
		t.Fatalf("expected invalid username to be rejected, got:\n%s", body)
	}
}

func TestIntegration_Metrics(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.get(t, "/login/")

	resp, body := ts.get(t, "/metrics")
	expectStatus(t, resp, http.StatusOK)
	if !strings.Contains(body, `accounts_http_requests_total{method="GET",route="GET /login/{$}",status="200"} 1`) {
		t.Fatalf("expected login page request to be counted, got:\n%s", body)
	}
}

func TestIntegration_MetricsCollapseUnknownMethods(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.get(t, "/")
	token := ts.csrfToken(t)

	for _, method := range []string{"BREW", "PROPFIND"} {
		req, err := http.NewRequest(method, ts.URL+"/", nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("X-CSRFToken", token)
		resp, err := ts.client.Do(req)
		if err != nil {
			t.Fatalf("%s /: %v", method, err)
		}
		readBody(t, resp)
	}

	_, body := ts.get(t, "/metrics")
	if strings.Contains(body, `method="BREW"`) || strings.Contains(body, `method="PROPFIND"`) {
		t.Fatalf("unknown methods must not become label values, got:\n%s", body)
	}
	if !strings.Contains(body, `method="other"`) {
		t.Fatalf("expected unknown methods under method=\"other\", got:\n%s", body)
	}
}

func TestIntegration_LoginRotatesCSRFToken(t *testing.T) {
	ts := newTestServer(t, nil)
	mustRegister(t, ts.auth, "alice", "correct-horse-42")

	ts.get(t, "/login/")
	before := ts.csrfToken(t)

	// A failed login keeps the token.
	resp, _ := ts.post(t, "/login/", url.Values{"username": {"alice"}, "password": {"wrong-horse-42"}})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	if got := ts.csrfToken(t); got != before {
		t.Fatal("failed login should not rotate the csrf token")
	}

	resp, _ = ts.post(t, "/login/", url.Values{"username": {"alice"}, "password": {"correct-horse-42"}})
	expectRedirect(t, resp, http.StatusSeeOther, "/")

	after := ts.csrfToken(t)
	if after == "" || after == before {
		t.Fatalf("expected a fresh csrf token after login, before=%q after=%q", before, after)
	}
	if len(after) != 64 {
		t.Fatalf("expected a 64 character token, got %d", len(after))
	}

	// The pre-login token no longer passes the check.
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/logout/", strings.NewReader(url.Values{"csrfmiddlewaretoken": {before}}.Encode()))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = ts.client.Do(req)
	if err != nil {
		t.Fatalf("POST /logout/: %v", err)
	}
	readBody(t, resp)
	expectStatus(t, resp, http.StatusForbidden)

	resp, _ = ts.post(t, "/logout/", url.Values{})
	expectRedirect(t, resp, http.StatusSeeOther, "/")
}
