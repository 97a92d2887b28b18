package actions

import (
	"context"

	"github.com/mattjoyce/relayd/internal/auth"
	"github.com/mattjoyce/relayd/internal/registry"
)

type sessionKey struct{}

// WithSession attaches a verified session to ctx.
func WithSession(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*auth.Session)
	return s, ok && s != nil
}

// RequireSession verifies params.session_token and requires perm on the
// session before calling next.
func RequireSession(svc *auth.Service, perm string) registry.Middleware {
	return func(next registry.Handler) registry.Handler {
		return registry.HandlerFunc(func(ctx context.Context, params registry.Params) (map[string]any, error) {
			sess, err := svc.Verify(ctx, params.String("session_token"))
			if err != nil {
				return nil, authFailure(err, "verify failed")
			}
			if !sess.Can(perm) {
				return nil, registry.Fail(403, "permission denied: "+perm)
			}
			return next.Handle(WithSession(ctx, sess), params)
		})
	}
}
