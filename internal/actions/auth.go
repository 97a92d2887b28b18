package actions

import (
	"context"

	"github.com/mattjoyce/relayd/internal/auth"
	"github.com/mattjoyce/relayd/internal/log"
	"github.com/mattjoyce/relayd/internal/registry"
)

func loginHandler(svc *auth.Service) registry.HandlerFunc {
	return func(ctx context.Context, params registry.Params) (map[string]any, error) {
		sess, err := svc.Login(ctx, params.String("username"), params.String("password"))
		if err != nil {
			return nil, authFailure(err, "login failed")
		}
		return map[string]any{
			"success":       true,
			"session_token": sess.Token,
			"username":      sess.Username,
			"role":          sess.Role,
			"permissions":   sess.Permissions,
			"login_time":    sess.LoginTime.Unix(),
		}, nil
	}
}

// logoutHandler always succeeds; the result says whether a session was removed.
func logoutHandler(svc *auth.Service) registry.HandlerFunc {
	return func(ctx context.Context, params registry.Params) (map[string]any, error) {
		ok, err := svc.Logout(ctx, params.String("session_token"))
		if err != nil {
			log.WithAction(AuthLogout).Error("logout failed", "error", err)
			return map[string]any{"success": false, "message": "Logout failed"}, nil
		}
		if !ok {
			return map[string]any{"success": false, "message": "Session not found"}, nil
		}
		return map[string]any{"success": true, "message": "Logged out successfully"}, nil
	}
}

func verifyHandler(svc *auth.Service) registry.HandlerFunc {
	return func(ctx context.Context, params registry.Params) (map[string]any, error) {
		sess, err := svc.Verify(ctx, params.String("session_token"))
		if err != nil {
			return nil, authFailure(err, "verify failed")
		}
		return map[string]any{
			"valid":       true,
			"username":    sess.Username,
			"role":        sess.Role,
			"permissions": sess.Permissions,
		}, nil
	}
}

// authFailure reports auth errors as 500 with their message.
// Store failures are hidden behind message.
func authFailure(err error, message string) error {
	if _, ok := auth.KindOf(err); ok {
		return registry.Wrap(500, err)
	}
	return registry.Internal(message, err)
}
