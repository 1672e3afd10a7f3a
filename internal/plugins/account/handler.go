// Package account provides the login and logout operations. Logout runs in
// the envelope's transaction. Login does not: credentials are checked
// without holding the transaction gate and only the session insert is
// transactional.
package account

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/sentinel/internal/api"
	"github.com/keyxmakerx/sentinel/internal/plugins/auth"
)

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Pass   string `json:"pass" validate:"required,max=128"`
	OTP    string `json:"otp" validate:"omitempty,max=16"`
}

// LoginResponse carries the bearer token for the new session. The session
// id travels only in the cookie.
type LoginResponse struct {
	Token string `json:"token"`
}

// Handler handles login and logout requests.
type Handler struct {
	authSvc      auth.AuthService
	env          *api.Envelope
	cookieSecure bool
}

// NewHandler creates a new account handler.
func NewHandler(authSvc auth.AuthService, env *api.Envelope, cookieSecure bool) *Handler {
	return &Handler{authSvc: authSvc, env: env, cookieSecure: cookieSecure}
}

// Login handles POST /api/login.
func (h *Handler) Login() echo.HandlerFunc {
	return api.Handle(h.env, api.Options{
		Method: http.MethodPost,
	}, func(ctx context.Context, req api.Request[LoginRequest]) (api.Response, error) {
		result, err := h.authSvc.Login(ctx, req.Input.UserID, req.Input.Pass, req.Input.OTP)
		if err != nil {
			return api.Response{}, err
		}
		auth.SetSessionCookie(req.Echo, result.SessionID, h.cookieSecure)
		return api.JSON(http.StatusOK, LoginResponse{Token: result.Auth.Token}), nil
	})
}

// Logout handles DELETE /api/logout. The caller must hold a live session;
// only that session is destroyed.
func (h *Handler) Logout() echo.HandlerFunc {
	return api.Handle(h.env, api.Options{
		Method:        http.MethodDelete,
		Permissions:   api.Perm(0),
		Transactional: true,
	}, func(ctx context.Context, req api.Request[struct{}]) (api.Response, error) {
		creds := auth.CredentialsFrom(req.Echo)
		if err := h.authSvc.Logout(ctx, creds.SessionID); err != nil {
			return api.Response{}, err
		}
		auth.ClearSessionCookie(req.Echo, h.cookieSecure)
		return api.NoContent(), nil
	})
}
