// Package api provides the envelope every privileged JSON operation runs in.
// The envelope checks the method, binds and validates the payload, opens the
// transaction, resolves the caller through the hard permission gate, runs the
// operation, and translates whatever comes back into a status and JSON body.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/sentinel/internal/apperror"
	"github.com/keyxmakerx/sentinel/internal/plugins/auth"
)

// Authenticator resolves credentials into an identity. It is satisfied by
// auth.AuthService.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID, token string, rotate bool) (*auth.Auth, error)
}

// Transactor opens the store's single transaction. It is satisfied by
// *database.Store.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Options declares how an operation is wrapped.
type Options struct {
	// Method is the only HTTP method the operation answers.
	Method string

	// Permissions is the required permission mask. Nil skips identity
	// resolution entirely; a pointer to zero requires any signed-in user.
	Permissions *int

	// Rotate rotates the caller's token while resolving identity.
	Rotate bool

	// Transactional runs identity resolution and the body in one transaction.
	Transactional bool
}

// Perm returns a permission requirement for Options.Permissions.
func Perm(mask int) *int {
	return &mask
}

// Response is what an operation body produces on success.
type Response struct {
	Status int
	Body   any
}

// JSON builds a Response with a JSON body.
func JSON(status int, body any) Response {
	return Response{Status: status, Body: body}
}

// NoContent builds a bodiless Response.
func NoContent() Response {
	return Response{Status: http.StatusNoContent}
}

// Request is handed to an operation body.
type Request[T any] struct {
	Echo  echo.Context
	Input *T
	// Auth is the resolved caller, or nil when the operation declares no
	// permission requirement.
	Auth *auth.Auth
}

// Body is the operation itself.
type Body[T any] func(ctx context.Context, req Request[T]) (Response, error)

// Envelope holds the collaborators shared by every operation.
type Envelope struct {
	authn Authenticator
	tx    Transactor
}

// New creates an envelope.
func New(authn Authenticator, tx Transactor) *Envelope {
	return &Envelope{authn: authn, tx: tx}
}

// Handle wraps body in the envelope and returns an echo handler. Register
// the handler with echo.Any so a wrong method is answered by the envelope.
func Handle[T any](env *Envelope, opts Options, body Body[T]) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		slog.Info("api begin",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)

		res, err := run(env, c, opts, body)

		status := res.Status
		if err != nil {
			status, _ = apperror.Classify(err)
		}
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		switch {
		case err == nil:
			slog.Info("api end", attrs...)
		case status >= 500:
			slog.Error("api end", append(attrs, slog.Any("error", err))...)
		default:
			slog.Warn("api end", append(attrs, slog.String("reason", err.Error()))...)
		}

		if err != nil {
			return WriteError(c, err)
		}
		if res.Body == nil {
			return c.NoContent(res.Status)
		}
		return c.JSON(res.Status, res.Body)
	}
}

func run[T any](env *Envelope, c echo.Context, opts Options, body Body[T]) (Response, error) {
	if opts.Method != "" && c.Request().Method != opts.Method {
		return Response{}, apperror.NewMethodNotAllowed(c.Request().Method)
	}

	input := new(T)
	if err := c.Bind(input); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusUnsupportedMediaType {
			return Response{}, apperror.NewValidation("unsupported content type.")
		}
		return Response{}, apperror.NewValidation("malformed request body.")
	}
	if err := c.Validate(input); err != nil {
		return Response{}, validationError(err)
	}

	// A client disconnect must not abort the operation halfway.
	ctx := context.WithoutCancel(c.Request().Context())

	var res Response
	exec := func(ctx context.Context) error {
		req := Request[T]{Echo: c, Input: input}
		if opts.Permissions != nil {
			creds := auth.CredentialsFrom(c)
			who, err := env.authn.Authenticate(ctx, creds.SessionID, creds.Token, opts.Rotate)
			if err != nil {
				return err
			}
			if req.Auth, err = auth.RequirePermission(who, *opts.Permissions); err != nil {
				return err
			}
		}

		var err error
		res, err = body(ctx, req)
		return err
	}

	if opts.Transactional {
		if err := env.tx.RunInTx(ctx, exec); err != nil {
			return Response{}, err
		}
		return res, nil
	}
	if err := exec(ctx); err != nil {
		return Response{}, err
	}
	return res, nil
}

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// WriteError translates err into a status and ErrorBody. Internal details
// never reach the client.
func WriteError(c echo.Context, err error) error {
	status, msg := apperror.Classify(err)
	var he *echo.HTTPError
	if _, ok := apperror.As(err); !ok && errors.As(err, &he) {
		// Router-level failures such as unknown routes.
		status, msg = he.Code, strings.ToLower(http.StatusText(he.Code))+"."
		if status >= http.StatusInternalServerError {
			msg = apperror.SystemErrorMessage
		}
	}
	if c.Response().Committed {
		return nil
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, ErrorBody{Status: status, Message: msg})
}
