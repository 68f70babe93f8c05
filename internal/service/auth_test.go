package service_test

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/msomdec/accounts/internal/domain"
	"github.com/msomdec/accounts/internal/form"
	"github.com/msomdec/accounts/internal/repository/sqlite"
	"github.com/msomdec/accounts/internal/service"
)

const testJWTSecret = "test-secret-key-for-unit-tests-0123456789"

func newTestAuthService(t *testing.T) (*service.AuthService, *sqlite.DB) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Use cost 4 for fast tests.
	auth := service.NewAuthService(db.Users(), testJWTSecret, 4)
	return auth, db
}

func registrationForm(username, password string) *form.UserCreationForm {
	return form.BindUserCreationForm(url.Values{
		"username":  {username},
		"password1": {password},
		"password2": {password},
	})
}

func mustRegister(t *testing.T, auth *service.AuthService, username, password string) *domain.User {
	t.Helper()
	user, err := auth.Register(context.Background(), registrationForm(username, password))
	if err != nil {
		t.Fatalf("Register %s: %v", username, err)
	}
	return user
}

func TestAuthService_Register_Success(t *testing.T) {
	auth, _ := newTestAuthService(t)

	user := mustRegister(t, auth, "newuser", "correct-horse-42")

	if user.ID == 0 {
		t.Fatal("expected user ID to be set")
	}
	if user.Username != "newuser" {
		t.Fatalf("expected username newuser, got %s", user.Username)
	}
	if !user.IsActive || user.IsStaff || user.IsSuperuser {
		t.Fatalf("unexpected flags for a registered user: %+v", user)
	}
	if user.PasswordHash == "correct-horse-42" {
		t.Fatal("password must be stored hashed")
	}
}

func TestAuthService_Register_DuplicateUsername(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	mustRegister(t, auth, "dup", "correct-horse-42")

	f := registrationForm("dup", "another-horse-77")
	_, err := auth.Register(ctx, f)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !slices.Contains(f.FieldErrors("username"), form.MsgDuplicateUsername) {
		t.Fatalf("expected duplicate error on username, got %v", f.FieldErrors("username"))
	}
}

func TestAuthService_Register_CompatibilityDuplicate(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	mustRegister(t, auth, "alice", "correct-horse-42")

	f := registrationForm("ａｌｉｃｅ", "another-horse-77")
	_, err := auth.Register(ctx, f)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if !slices.Contains(f.FieldErrors("username"), form.MsgDuplicateUsername) {
		t.Fatalf("expected fullwidth name to collide with alice, got %v", f.FieldErrors("username"))
	}

	user, err := auth.Authenticate(ctx, "ａｌｉｃｅ", "correct-horse-42")
	if err != nil {
		t.Fatalf("Authenticate with fullwidth name: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %s", user.Username)
	}
}

func TestAuthService_Register_InvalidFormKeepsErrors(t *testing.T) {
	auth, _ := newTestAuthService(t)

	f := registrationForm("weak", "short")
	_, err := auth.Register(context.Background(), f)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(f.FieldErrors("password2")) == 0 {
		t.Fatal("expected password errors to remain on the form")
	}
}

func TestAuthService_Register_UnboundForm(t *testing.T) {
	auth, _ := newTestAuthService(t)

	_, err := auth.Register(context.Background(), form.NewUserCreationForm())
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unbound form, got %v", err)
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	registered := mustRegister(t, auth, "login", "correct-horse-42")

	user, err := auth.Authenticate(ctx, "login", "correct-horse-42")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("expected user %d, got %d", registered.ID, user.ID)
	}

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "login", "wrong-horse-42"},
		{"unknown user", "nobody", "correct-horse-42"},
		{"username is case-sensitive", "LOGIN", "correct-horse-42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Authenticate(ctx, tc.username, tc.password)
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestAuthService_Authenticate_Inactive(t *testing.T) {
	auth, db := newTestAuthService(t)
	ctx := context.Background()

	user := mustRegister(t, auth, "sleepy", "correct-horse-42")
	if _, err := db.SqlDB.ExecContext(ctx, "UPDATE users SET is_active = 0 WHERE id = ?", user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := auth.Authenticate(ctx, "sleepy", "correct-horse-42")
	if !errors.Is(err, domain.ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}

	// A wrong password on an inactive account reveals nothing extra.
	_, err = auth.Authenticate(ctx, "sleepy", "wrong-horse-42")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthService_AuthenticateForm(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	mustRegister(t, auth, "formuser", "correct-horse-42")

	good := form.BindAuthenticationForm(url.Values{"username": {"formuser"}, "password": {"correct-horse-42"}})
	if _, err := auth.AuthenticateForm(ctx, good); err != nil {
		t.Fatalf("AuthenticateForm: %v", err)
	}

	bad := form.BindAuthenticationForm(url.Values{"username": {"formuser"}, "password": {"nope"}})
	_, err := auth.AuthenticateForm(ctx, bad)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if got := bad.NonFieldErrors(); len(got) != 1 || got[0] != form.MsgInvalidLogin {
		t.Fatalf("expected invalid login message, got %v", got)
	}

	empty := form.BindAuthenticationForm(url.Values{})
	if _, err := auth.AuthenticateForm(ctx, empty); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty form, got %v", err)
	}
	if len(empty.NonFieldErrors()) != 0 {
		t.Fatal("field errors should not also produce a credentials error")
	}
}

func TestAuthService_LoginAndValidateToken(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	user := mustRegister(t, auth, "tokens", "correct-horse-42")

	token, err := auth.Login(ctx, user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	userID, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("expected user ID %d, got %d", user.ID, userID)
	}

	stored, err := auth.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.LastLogin == nil {
		t.Fatal("expected last login to be recorded")
	}
}

func TestAuthService_ValidateToken_Invalid(t *testing.T) {
	auth, _ := newTestAuthService(t)

	if _, err := auth.ValidateToken("invalid.jwt.token"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthService_ValidateToken_WrongSecret(t *testing.T) {
	auth, db := newTestAuthService(t)
	ctx := context.Background()

	user := mustRegister(t, auth, "secret", "correct-horse-42")
	token, err := auth.Login(ctx, user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	other := service.NewAuthService(db.Users(), "another-secret-that-is-long-enough-xx", 4)
	if _, err := other.ValidateToken(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for foreign token, got %v", err)
	}
}

func TestAuthService_ValidateToken_Expired(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	issued := time.Now().Add(-48 * time.Hour)
	auth.SetNow(func() time.Time { return issued })

	user := mustRegister(t, auth, "expired", "correct-horse-42")
	token, err := auth.Login(ctx, user)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	auth.SetNow(time.Now)
	if _, err := auth.ValidateToken(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestAuthService_CreateSuperuser(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	admin, err := auth.CreateSuperuser(ctx, "admin", "correct-horse-42")
	if err != nil {
		t.Fatalf("CreateSuperuser: %v", err)
	}
	if !admin.IsStaff || !admin.IsSuperuser || !admin.IsActive {
		t.Fatalf("expected active staff superuser, got %+v", admin)
	}

	if _, err := auth.CreateSuperuser(ctx, "admin", "correct-horse-42"); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if _, err := auth.CreateSuperuser(ctx, "root", "123"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for weak password, got %v", err)
	}
}

func TestAuthService_UsernameAvailable(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	mustRegister(t, auth, "taken", "correct-horse-42")

	tests := []struct {
		name      string
		username  string
		available bool
		message   string
	}{
		{"free", "free_name", true, "Username is available."},
		{"taken", "taken", false, form.MsgDuplicateUsername},
		{"taken fullwidth", "ｔａｋｅｎ", false, form.MsgDuplicateUsername},
		{"empty", "", false, "This field is required."},
		{"blank", "   ", false, "This field is required."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, msg, err := auth.UsernameAvailable(ctx, tc.username)
			if err != nil {
				t.Fatalf("UsernameAvailable: %v", err)
			}
			if ok != tc.available || msg != tc.message {
				t.Fatalf("expected (%v, %q), got (%v, %q)", tc.available, tc.message, ok, msg)
			}
		})
	}
}

func TestAuthService_ListAndCountUsers(t *testing.T) {
	auth, _ := newTestAuthService(t)
	ctx := context.Background()

	mustRegister(t, auth, "zed", "correct-horse-42")
	mustRegister(t, auth, "amy", "correct-horse-42")

	n, err := auth.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 users, got %d", n)
	}

	users, err := auth.ListUsers(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].Username != "amy" {
		t.Fatalf("unexpected users: %+v", users)
	}
}
