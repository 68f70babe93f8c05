// Package cache decorates repositories with an in-memory TTL cache.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/msomdec/accounts/internal/domain"
	gocache "github.com/patrickmn/go-cache"
)

// UserRepository caches users by ID in front of another domain.UserRepository.
// Every authenticated request resolves its user by ID, so this is the hot path.
// Lookups by username always go to the underlying store because they feed
// password checks.
type UserRepository struct {
	next  domain.UserRepository
	cache *gocache.Cache
}

// NewUserRepository wraps next with a cache whose entries expire after ttl.
func NewUserRepository(next domain.UserRepository, ttl time.Duration) *UserRepository {
	return &UserRepository{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := r.next.Create(ctx, user); err != nil {
		return err
	}
	r.cache.SetDefault(key(user.ID), *user)
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if v, ok := r.cache.Get(key(id)); ok {
		user := v.(domain.User)
		return &user, nil
	}

	user, err := r.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key(id), *user)
	return user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.next.GetByUsername(ctx, username)
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	return r.next.List(ctx, limit, offset)
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	return r.next.Count(ctx)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	err := r.next.UpdateLastLogin(ctx, id, at)
	r.cache.Delete(key(id))
	return err
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}
