package github

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/keyxmakerx/sentinel/internal/api"
	"github.com/keyxmakerx/sentinel/internal/apperror"
	"github.com/keyxmakerx/sentinel/internal/plugins/auth"
)

// Cookies holding the pending authorization between login and callback.
const (
	stateCookieName    = "oauth_state"
	verifierCookieName = "oauth_verifier"
	pendingTTL         = 10 * time.Minute
)

// Redirect targets after the callback.
const (
	redirectFailedAuth  = "/?failed=auth"
	redirectFailedError = "/?failed=error"
)

// Handler serves the GitHub login redirect and callback.
type Handler struct {
	provider     Provider
	authSvc      auth.AuthService
	tx           api.Transactor
	cookieSecure bool
}

// NewHandler creates a new GitHub login handler.
func NewHandler(provider Provider, authSvc auth.AuthService, tx api.Transactor, cookieSecure bool) *Handler {
	return &Handler{provider: provider, authSvc: authSvc, tx: tx, cookieSecure: cookieSecure}
}

// Login handles GET /auth/github_login.
func (h *Handler) Login(c echo.Context) error {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	h.setPending(c, stateCookieName, state, int(pendingTTL.Seconds()))
	h.setPending(c, verifierCookieName, verifier, int(pendingTTL.Seconds()))

	return c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state, verifier))
}

// Callback handles GET /auth/github_callback.
func (h *Handler) Callback(c echo.Context) error {
	start := time.Now()
	slog.Info("oauth begin", slog.String("path", c.Request().URL.Path))
	target, err := h.callback(c)
	slog.Info("oauth end",
		slog.String("path", c.Request().URL.Path),
		slog.String("redirect", redactToken(target)),
		slog.Duration("latency", time.Since(start)),
	)
	if err != nil {
		return api.WriteError(c, err)
	}
	return c.Redirect(http.StatusFound, target)
}

func (h *Handler) callback(c echo.Context) (string, error) {
	state, verifier := h.takePending(c)
	got := c.QueryParam("state")
	if state == "" || got == "" || subtle.ConstantTimeCompare([]byte(state), []byte(got)) != 1 {
		return "", apperror.NewValidation("bad request.")
	}

	if reason := c.QueryParam("error"); reason != "" {
		slog.Warn("github authorization declined", slog.String("reason", reason))
		return redirectFailedError, nil
	}

	ctx := context.WithoutCancel(c.Request().Context())
	username, err := h.provider.Username(ctx, c.QueryParam("code"), verifier)
	if err != nil {
		slog.Warn("github login failed", slog.Any("error", err))
		return redirectFailedError, nil
	}

	var result *auth.LoginResult
	err = h.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = h.authSvc.LoginExternal(ctx, username)
		return err
	})
	if err != nil {
		if appErr, ok := apperror.As(err); ok && appErr.Kind == apperror.KindUnauthenticated {
			slog.Info("github user not linked", slog.String("github_user", username))
			return redirectFailedAuth, nil
		}
		return "", err
	}

	auth.SetSessionCookie(c, result.SessionID, h.cookieSecure)
	return "/?" + url.Values{auth.TokenParam: {result.Auth.Token}}.Encode(), nil
}

func (h *Handler) setPending(c echo.Context, name, value string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// takePending reads and clears the pending authorization cookies. A state
// is good for one callback only.
func (h *Handler) takePending(c echo.Context) (state, verifier string) {
	if ck, err := c.Cookie(stateCookieName); err == nil {
		state = ck.Value
	}
	if ck, err := c.Cookie(verifierCookieName); err == nil {
		verifier = ck.Value
	}
	h.setPending(c, stateCookieName, "", -1)
	h.setPending(c, verifierCookieName, "", -1)
	return state, verifier
}

func redactToken(target string) string {
	u, err := url.Parse(target)
	if err != nil || !u.Query().Has(auth.TokenParam) {
		return target
	}
	return u.Path + "?" + auth.TokenParam + "=***"
}
