// Package auth resolves the signed-in principal for a request and runs
// the Google sign-in flow that creates sessions.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pagepress/internal/models"
	apperrors "pagepress/internal/pkg/errors"
	"pagepress/internal/pkg/logger"
	"pagepress/internal/pkg/middleware"
	"pagepress/internal/repositories"
)

type principalKey struct{}

// SessionReader looks up live sessions by token.
type SessionReader interface {
	Get(ctx context.Context, token string) (*models.Session, error)
}

// UserFinder resolves a session's email to a stored user.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Gate turns a session cookie into an authenticated principal.
type Gate struct {
	sessions   SessionReader
	users      UserFinder
	cookieName string
	log        *logger.Logger
}

func NewGate(sessions SessionReader, users UserFinder, cookieName string, log *logger.Logger) *Gate {
	return &Gate{sessions: sessions, users: users, cookieName: cookieName, log: log}
}

// Authenticate returns the principal behind r. No session is
// Unauthenticated; a session whose email has no user row is
// UnknownPrincipal.
func (g *Gate) Authenticate(r *http.Request) (*models.User, error) {
	token := g.token(r)
	if token == "" {
		return nil, apperrors.Unauthenticated("sign in required")
	}

	sess, err := g.sessions.Get(r.Context(), token)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apperrors.Unauthenticated("session expired or invalid")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "auth.Authenticate", "failed to load session")
	}
	if sess.UserEmail == "" {
		return nil, apperrors.Unauthenticated("session has no email")
	}

	user, err := g.users.FindByEmail(r.Context(), sess.UserEmail)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, apperrors.UnknownPrincipal(sess.UserEmail)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "auth.Authenticate", "failed to load user")
	}
	return user, nil
}

// Require rejects unauthenticated requests and stores the principal in
// the request context.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.Authenticate(r)
		if err != nil {
			middleware.HandleError(w, r, g.log, err)
			return
		}
		ctx := WithPrincipal(r.Context(), user)
		ctx = logger.ContextWithPrincipalID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// token reads the session cookie, falling back to a bearer header for
// non-browser clients.
func (g *Gate) token(r *http.Request) string {
	return sessionToken(r, g.cookieName)
}

// sessionToken reads the session cookie, falling back to a Bearer token.
func sessionToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func WithPrincipal(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, principalKey{}, user)
}

// CurrentPrincipal returns the user Require stored on r.
func CurrentPrincipal(r *http.Request) (*models.User, error) {
	user, ok := r.Context().Value(principalKey{}).(*models.User)
	if !ok || user == nil {
		return nil, apperrors.Unauthenticated("sign in required")
	}
	return user, nil
}
