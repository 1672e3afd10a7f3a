package users

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/sentinel/internal/api"
	"github.com/keyxmakerx/sentinel/internal/plugins/auth"
)

// secretIssuer labels suggested TOTP secrets in authenticator apps.
const secretIssuer = "sentinel"

// Handler handles user registry HTTP requests. API operations run inside the
// request envelope; views use the soft gate and always answer 200.
type Handler struct {
	service UserService
	authSvc auth.AuthService
	env     *api.Envelope
}

// NewHandler creates a new users handler.
func NewHandler(service UserService, authSvc auth.AuthService, env *api.Envelope) *Handler {
	return &Handler{service: service, authSvc: authSvc, env: env}
}

// --- API ---

// AddUser handles POST /api/addUser (administrators only).
func (h *Handler) AddUser() echo.HandlerFunc {
	return api.Handle(h.env, api.Options{
		Method:        http.MethodPost,
		Permissions:   api.Perm(auth.PermAdmin),
		Transactional: true,
	}, func(ctx context.Context, req api.Request[AddUserRequest]) (api.Response, error) {
		if err := h.service.Add(ctx, req.Auth, *req.Input); err != nil {
			return api.Response{}, err
		}
		return api.JSON(http.StatusCreated, UserIDResponse{UserID: req.Input.UserID}), nil
	})
}

// ModifyUser handles PUT /api/modifyUser. Any signed-in user may edit
// themselves; editing others requires the administrator bit.
func (h *Handler) ModifyUser() echo.HandlerFunc {
	return api.Handle(h.env, api.Options{
		Method:        http.MethodPut,
		Permissions:   api.Perm(0),
		Transactional: true,
	}, func(ctx context.Context, req api.Request[ModifyUserRequest]) (api.Response, error) {
		if err := h.service.Modify(ctx, req.Auth, *req.Input); err != nil {
			return api.Response{}, err
		}
		return api.JSON(http.StatusOK, UserIDResponse{UserID: req.Input.UserID}), nil
	})
}

// RemoveUser handles DELETE /api/removeUser?userId= (administrators only).
func (h *Handler) RemoveUser() echo.HandlerFunc {
	return api.Handle(h.env, api.Options{
		Method:        http.MethodDelete,
		Permissions:   api.Perm(auth.PermAdmin),
		Transactional: true,
	}, func(ctx context.Context, req api.Request[RemoveUserRequest]) (api.Response, error) {
		if err := h.service.Remove(ctx, req.Auth, req.Input.UserID); err != nil {
			return api.Response{}, err
		}
		return api.NoContent(), nil
	})
}

// --- Views ---

// Index renders the user list (GET /views/index).
func (h *Handler) Index(c echo.Context) error {
	return h.view(c, 0, func(ctx context.Context, viewer *auth.Auth) (map[string]any, error) {
		users, err := h.service.List(ctx)
		if err != nil {
			return nil, err
		}
		views := make([]UserView, 0, len(users))
		for i := range users {
			views = append(views, toView(&users[i], nil))
		}
		return map[string]any{"users": views}, nil
	})
}

// User renders a single user (GET /views/users/:userId). A missing user is
// rendered as null.
func (h *Handler) User(c echo.Context) error {
	userID := c.Param("userId")
	return h.view(c, 0, func(ctx context.Context, viewer *auth.Auth) (map[string]any, error) {
		user, err := h.service.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return map[string]any{"user": nil}, nil
		}
		data := map[string]any{"user": toView(user, viewer)}
		if viewer.UserID == user.UserID || viewer.Permissions&auth.PermAdmin != 0 {
			data["suggestedSecret"] = suggestSecret(user.UserID)
		}
		return data, nil
	})
}

// AddUserForm renders the data for the add-user page (GET /views/addUser).
func (h *Handler) AddUserForm(c echo.Context) error {
	return h.view(c, auth.PermAdmin, func(ctx context.Context, viewer *auth.Auth) (map[string]any, error) {
		return map[string]any{"suggestedSecret": suggestSecret("")}, nil
	})
}

// About renders the about page (GET /views/about).
func (h *Handler) About(c echo.Context) error {
	return h.view(c, 0, nil)
}

func (h *Handler) view(c echo.Context, required int, load auth.ViewLoader) error {
	ctx := context.WithoutCancel(c.Request().Context())
	v := auth.TryAuthenticateForView(ctx, h.authSvc, auth.CredentialsFrom(c), required, load)
	return c.JSON(http.StatusOK, v)
}

// suggestSecret offers a fresh TOTP secret the page can present for
// enrolment. Failure only means no suggestion is shown.
func suggestSecret(account string) string {
	if account == "" {
		account = "new user"
	}
	secret, err := auth.GenerateSecret(secretIssuer, account)
	if err != nil {
		slog.Warn("generating suggested secret", slog.Any("error", err))
		return ""
	}
	return secret
}
