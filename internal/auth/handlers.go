package auth

import (
	"context"
	"net/http"
	"time"

	"pagepress/internal/config"
	"pagepress/internal/httpkit"
	"pagepress/internal/models"
	apperrors "pagepress/internal/pkg/errors"
	"pagepress/internal/pkg/logger"
)

const (
	nonceCookieName = "pagepress_oauth_nonce"
	nonceCookiePath = "/auth"
	stateTTL        = 10 * time.Minute
)

// Sessions is the session lifecycle the sign-in handlers need.
type Sessions interface {
	SessionReader
	Create(ctx context.Context, user *models.User, userAgent string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
}

// UserUpserter stores the identity returned by the provider.
type UserUpserter interface {
	UpsertByEmail(ctx context.Context, email, name, image string) (*models.User, error)
}

// Handler serves the /auth routes.
type Handler struct {
	provider IdentityProvider
	signer   *StateSigner
	sessions Sessions
	users    UserUpserter
	cfg      config.AuthConfig
	log      *logger.Logger
}

func NewHandler(provider IdentityProvider, sessions Sessions, users UserUpserter, cfg config.AuthConfig, log *logger.Logger) *Handler {
	return &Handler{
		provider: provider,
		signer:   NewStateSigner(cfg.SessionSecret, stateTTL),
		sessions: sessions,
		users:    users,
		cfg:      cfg,
		log:      log.WithComponent("auth"),
	}
}

// SignIn redirects to the provider's consent screen.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) error {
	nonce, err := randomToken(18)
	if err != nil {
		return apperrors.Wrap(err, "auth.SignIn", "failed to start sign-in")
	}
	state, err := h.signer.Issue(nonce)
	if err != nil {
		return apperrors.Wrap(err, "auth.SignIn", "failed to start sign-in")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     nonceCookieName,
		Value:    nonce,
		Path:     nonceCookiePath,
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
	return nil
}

// Callback finishes the authorization-code flow, upserts the user and
// opens a session.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return apperrors.Unauthenticated("sign-in was not completed").WithField("reason", e)
	}

	nonce := ""
	if c, err := r.Cookie(nonceCookieName); err == nil {
		nonce = c.Value
	}
	if err := h.signer.Verify(q.Get("state"), nonce); err != nil {
		return apperrors.InvalidInput("invalid sign-in state")
	}
	clearCookie(w, nonceCookieName, nonceCookiePath, h.cfg.CookieSecure)

	code := q.Get("code")
	if code == "" {
		return apperrors.InvalidField("code", "missing authorization code")
	}

	id, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnauthenticated, "auth.Callback", "sign-in failed")
	}
	if id.Email == "" || !id.Verified {
		return apperrors.Unauthenticated("google account email is not verified")
	}

	user, err := h.users.UpsertByEmail(r.Context(), id.Email, id.Name, id.Picture)
	if err != nil {
		return apperrors.Wrap(err, "auth.Callback", "failed to save user")
	}

	sess, err := h.sessions.Create(r.Context(), user, r.UserAgent())
	if err != nil {
		return apperrors.Wrap(err, "auth.Callback", "failed to create session")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	h.log.FromContext(r.Context()).Info("user signed in",
		"user_id", user.ID,
		"browser", sess.Browser,
		"os", sess.OS,
	)
	http.Redirect(w, r, h.cfg.PostLoginRedirect, http.StatusFound)
	return nil
}

// SignOut deletes the session and clears the cookie.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) error {
	if token := sessionToken(r, h.cfg.CookieName); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			return apperrors.Wrap(err, "auth.SignOut", "failed to end session")
		}
	}
	clearCookie(w, h.cfg.CookieName, "/", h.cfg.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Session returns the current principal.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) error {
	user, err := CurrentPrincipal(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"user": user})
	return nil
}

func clearCookie(w http.ResponseWriter, name, path string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
