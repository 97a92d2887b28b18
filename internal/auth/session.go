package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/mattjoyce/relayd/internal/auth SessionStore

// tokenBytes is the random size of a session token (128 bits).
const tokenBytes = 16

// Session is the server-side record behind a session token.
type Session struct {
	Token        string
	Username     string
	Role         string
	Permissions  []string // snapshot taken at login
	LoginTime    time.Time
	LastActivity time.Time
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Permissions = slices.Clone(s.Permissions)
	return &c
}

// Expired reports whether the session is past ttl, measured from LoginTime.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LoginTime) > ttl
}

// Can reports whether the session holds perm, directly or via "*".
func (s *Session) Can(perm string) bool {
	for _, p := range s.Permissions {
		if p == AllPermissions || p == perm {
			return true
		}
	}
	return false
}

// SessionStore holds sessions by token. Implementations must be safe for
// concurrent use and never keep two records under one token.
type SessionStore interface {
	// Create stores s. Returns ErrTokenExists if s.Token is taken.
	Create(ctx context.Context, s *Session) error
	// Refresh atomically checks expiry and bumps LastActivity to now.
	// An expired session is deleted and returned together with ErrSessionExpired.
	Refresh(ctx context.Context, token string, now time.Time, ttl time.Duration) (*Session, error)
	// Delete removes the session and returns it; ok is false if it was absent.
	Delete(ctx context.Context, token string) (s *Session, ok bool, err error)
	// Sweep deletes and returns every session past ttl.
	Sweep(ctx context.Context, now time.Time, ttl time.Duration) ([]*Session, error)
	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)
}

// NewToken returns a random base64url token.
func NewToken() (string, error) {
	var b [tokenBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
