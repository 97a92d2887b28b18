package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattjoyce/relayd/internal/log"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Session lifecycle event types published through EventPublisher.
const (
	EventSessionCreated = "session.created"
	EventSessionClosed  = "session.closed"
	EventSessionExpired = "session.expired"
)

const maxTokenAttempts = 3

// EventPublisher receives session lifecycle events. Publish must not block.
type EventPublisher interface {
	Publish(eventType string, data any)
}

// Service implements login, logout and verify over a credential and session store.
type Service struct {
	creds    *CredentialStore
	store    SessionStore
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)
	events   EventPublisher
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenSource overrides NewToken.
func WithTokenSource(fn func() (string, error)) Option {
	return func(s *Service) { s.newToken = fn }
}

// WithEvents sets the lifecycle event sink.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// NewService creates a Service. A non-positive ttl means DefaultTTL.
func NewService(creds *CredentialStore, store SessionStore, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		creds:    creds,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		newToken: NewToken,
		logger:   log.WithComponent("auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Login checks passwordHash against the stored hash and opens a new session.
// Multiple sessions per user are allowed.
func (s *Service) Login(ctx context.Context, username, passwordHash string) (*Session, error) {
	username = strings.TrimSpace(username)
	s.logger.Info("login attempt", "username", username)

	cred, ok := s.creds.Lookup(username)
	if !ok {
		s.logger.Warn("login failed: unknown user", "username", username)
		return nil, newError(KindInvalidCredentials)
	}
	if !constantTimeEqual(passwordHash, cred.PasswordHash) {
		s.logger.Warn("login failed: wrong password", "username", username)
		return nil, newError(KindInvalidCredentials)
	}

	now := s.now()
	sess := &Session{
		Username:     cred.Username,
		Role:         cred.Role,
		Permissions:  cred.Permissions,
		LoginTime:    now,
		LastActivity: now,
	}

	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, fmt.Errorf("generate session token: %w", err)
		}
		sess.Token = token

		err = s.store.Create(ctx, sess)
		if err == nil {
			break
		}
		if errors.Is(err, ErrTokenExists) && attempt < maxTokenAttempts {
			continue
		}
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.logger.Info("login successful", "username", sess.Username, "role", sess.Role, "token", log.TokenHint(sess.Token))
	s.publish(EventSessionCreated, sess, "")
	return sess.Clone(), nil
}

// Logout removes the session. It reports false, not an error, for unknown tokens.
func (s *Service) Logout(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	sess, ok, err := s.store.Delete(ctx, token)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if !ok {
		return false, nil
	}
	s.logger.Info("user logged out", "username", sess.Username, "token", log.TokenHint(token))
	s.publish(EventSessionClosed, sess, "logout")
	return true, nil
}

// Verify returns the live session for token and refreshes its last activity.
// A session older than the TTL is removed and reported as SessionExpired.
func (s *Service) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, newError(KindSessionNotFound)
	}

	sess, err := s.store.Refresh(ctx, token, s.now(), s.ttl)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, ErrSessionNotFound):
		return nil, newError(KindSessionNotFound)
	case errors.Is(err, ErrSessionExpired):
		if sess != nil {
			s.logger.Info("session expired", "username", sess.Username, "token", log.TokenHint(token))
		}
		s.publish(EventSessionExpired, sess, "verify")
		return nil, newError(KindSessionExpired)
	default:
		return nil, fmt.Errorf("verify session: %w", err)
	}
}

// Sweep removes all expired sessions and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	removed, err := s.store.Sweep(ctx, s.now(), s.ttl)
	for _, sess := range removed {
		s.publish(EventSessionExpired, sess, "sweep")
	}
	if err != nil {
		return len(removed), fmt.Errorf("sweep sessions: %w", err)
	}
	if len(removed) > 0 {
		s.logger.Info("swept expired sessions", "count", len(removed))
	}
	return len(removed), nil
}

// ActiveSessions returns the number of stored sessions, including expired
// ones not yet touched.
func (s *Service) ActiveSessions(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *Service) publish(eventType string, sess *Session, reason string) {
	if s.events == nil || sess == nil {
		return
	}
	data := map[string]any{
		"username": sess.Username,
		"role":     sess.Role,
	}
	if reason != "" {
		data["reason"] = reason
	}
	s.events.Publish(eventType, data)
}

func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
