package service

import "time"

// SetNow replaces the clock used by the service.
func (s *AuthService) SetNow(now func() time.Time) { s.now = now }

// SetNow replaces the clock used by the limiter.
func (tb *TokenBucket) SetNow(now func() time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.now = now
}

// EvictIdle runs one cleanup pass immediately.
func (tb *TokenBucket) EvictIdle() { tb.evictIdle() }
