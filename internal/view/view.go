// Package view renders the application's HTML pages as templ components.
package view

import (
	"context"
	"fmt"
	"time"

	"github.com/a-h/templ"
	"github.com/msomdec/accounts/internal/domain"
)

// UsernameStatusID is the element the live username check patches.
const UsernameStatusID = "username-status"

type csrfKey struct{}

// WithCSRFToken returns a context carrying the token that forms embed in
// their hidden csrfmiddlewaretoken field.
func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfKey{}, token)
}

// CSRFToken returns the token stored by WithCSRFToken, or "".
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfKey{}).(string)
	return token
}

// UserPage is one page of the admin user list.
type UserPage struct {
	Users   []domain.User
	Page    int // 1-based
	Pages   int
	Total   int
	PerPage int
}

func pageURL(page int) templ.SafeURL {
	return templ.SafeURL(fmt.Sprintf("/admin/?page=%d", page))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
