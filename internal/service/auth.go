package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/msomdec/accounts/internal/domain"
	"github.com/msomdec/accounts/internal/form"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL is how long a login session token stays valid.
const TokenTTL = 24 * time.Hour

// AuthService handles user registration, authentication and JWT session tokens.
type AuthService struct {
	users      domain.UserRepository
	jwtSecret  []byte
	bcryptCost int
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService creates a new AuthService.
func NewAuthService(users domain.UserRepository, jwtSecret string, bcryptCost int) *AuthService {
	return &AuthService{
		users:      users,
		jwtSecret:  []byte(jwtSecret),
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// Register validates the form and creates an active, non-staff user.
// If the form is invalid, errors are recorded on it and ErrInvalidInput is returned.
func (s *AuthService) Register(ctx context.Context, f *form.UserCreationForm) (*domain.User, error) {
	if !f.IsBound() {
		return nil, fmt.Errorf("%w: form is not bound", domain.ErrInvalidInput)
	}
	if !f.IsValid() {
		return nil, domain.ErrInvalidInput
	}

	_, err := s.users.GetByUsername(ctx, f.Username)
	switch {
	case err == nil:
		f.AddError("username", form.MsgDuplicateUsername)
		return nil, domain.ErrInvalidInput
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("check username: %w", err)
	}

	user, err := s.createUser(ctx, f.Username, f.Password1, false)
	if errors.Is(err, domain.ErrDuplicateUsername) {
		// Lost a race with a concurrent registration.
		f.AddError("username", form.MsgDuplicateUsername)
		return nil, domain.ErrInvalidInput
	}
	return user, err
}

// CreateSuperuser creates an active staff user with every permission.
func (s *AuthService) CreateSuperuser(ctx context.Context, username, password string) (*domain.User, error) {
	username = form.NormalizeUsername(username)
	var problems []string
	problems = append(problems, form.ValidateUsername(username)...)
	problems = append(problems, form.ValidatePassword(password, username)...)
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, strings.Join(problems, " "))
	}
	return s.createUser(ctx, username, password, true)
}

func (s *AuthService) createUser(ctx context.Context, username, password string, superuser bool) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     true,
		IsStaff:      superuser,
		IsSuperuser:  superuser,
		DateJoined:   s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateUsername) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks a username and password pair. It returns ErrUnauthorized
// for unknown users or wrong passwords and ErrInactive for disabled accounts
// whose password was correct.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, form.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Spend the same time as a real check so response timing
			// does not reveal which usernames exist.
			bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	if !user.IsActive {
		return nil, domain.ErrInactive
	}
	return user, nil
}

// AuthenticateForm validates a login form and checks its credentials.
// Failures are recorded on the form and reported as ErrInvalidInput.
func (s *AuthService) AuthenticateForm(ctx context.Context, f *form.AuthenticationForm) (*domain.User, error) {
	if !f.IsValid() {
		return nil, domain.ErrInvalidInput
	}

	user, err := s.Authenticate(ctx, f.Username, f.Password)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		f.AddError("", form.MsgInvalidLogin)
		return nil, domain.ErrInvalidInput
	case errors.Is(err, domain.ErrInactive):
		f.AddError("", form.MsgInactive)
		return nil, domain.ErrInvalidInput
	case err != nil:
		return nil, err
	}
	return user, nil
}

// Login records the login time and returns a signed JWT for the user.
func (s *AuthService) Login(ctx context.Context, user *domain.User) (string, error) {
	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return "", fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	token, err := s.generateJWT(user, now)
	if err != nil {
		return "", fmt.Errorf("generate jwt: %w", err)
	}
	return token, nil
}

// ValidateToken parses and validates a JWT token string.
// Returns the user ID from the sub claim.
func (s *AuthService) ValidateToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return 0, domain.ErrUnauthorized
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, domain.ErrUnauthorized
	}

	return userID, nil
}

// GetUserByID retrieves a user by their ID.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// UsernameAvailable reports whether username could be registered right now,
// with a message suitable for showing next to the field.
func (s *AuthService) UsernameAvailable(ctx context.Context, username string) (bool, string, error) {
	username = form.NormalizeUsername(username)
	if problems := form.ValidateUsername(username); len(problems) > 0 {
		return false, problems[0], nil
	}
	_, err := s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return false, form.MsgDuplicateUsername, nil
	case errors.Is(err, domain.ErrNotFound):
		return true, "Username is available.", nil
	default:
		return false, "", fmt.Errorf("check username: %w", err)
	}
}

// ListUsers returns a page of users ordered by username.
func (s *AuthService) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	return s.users.List(ctx, limit, offset)
}

// CountUsers returns the number of registered users.
func (s *AuthService) CountUsers(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unused-password"), s.bcryptCost)
	})
	return s.dummyHash
}

func (s *AuthService) generateJWT(user *domain.User, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(user.ID, 10),
		"username": user.Username,
		"staff":    user.IsStaff,
		"iat":      now.Unix(),
		"exp":      now.Add(TokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
