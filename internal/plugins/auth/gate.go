package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/keyxmakerx/sentinel/internal/apperror"
)

// Messages a soft-mode page shows instead of its data.
const (
	ViewErrUnauthenticated = "authentication failed."
	ViewErrForbidden       = "have not permissions."
)

// RequirePermission is the hard gate: an unresolved identity is
// Unauthenticated and an identity lacking the required bit is Forbidden.
// Otherwise the identity is returned unchanged.
func RequirePermission(auth *Auth, required int) (*Auth, error) {
	if auth == nil {
		return nil, apperror.NewUnauthenticated("")
	}
	if !auth.Has(required) {
		return nil, apperror.NewForbidden("")
	}
	return auth, nil
}

// ViewLoader loads the data of a page once the viewer is authorized.
type ViewLoader func(ctx context.Context, auth *Auth) (map[string]any, error)

// TryAuthenticateForView is the soft gate used by page renders. It always
// returns a view: failures land in the "auth" block as an error message and
// no page data is loaded. Identity resolution always rotates the token.
func TryAuthenticateForView(ctx context.Context, svc AuthService, creds Credentials, required int, load ViewLoader) View {
	start := time.Now()
	slog.Info("view auth begin")

	view, outcome := tryAuthenticateForView(ctx, svc, creds, required, load)

	slog.Info("view auth end",
		slog.String("outcome", outcome),
		slog.Duration("latency", time.Since(start)),
	)
	return view
}

func tryAuthenticateForView(ctx context.Context, svc AuthService, creds Credentials, required int, load ViewLoader) (View, string) {
	auth, err := svc.Authenticate(ctx, creds.SessionID, creds.Token, true)
	if err != nil {
		slog.Error("view authentication failed", slog.Any("error", err))
		return errorView(apperror.SystemErrorMessage), "error"
	}

	if auth == nil {
		return errorView(ViewErrUnauthenticated), "unauthenticated"
	}
	if _, err := RequirePermission(auth, required); err != nil {
		// The token was already rotated, so it still has to reach the client.
		return View{"auth": ViewAuth{Auth: auth, Error: ViewErrForbidden}}, "forbidden"
	}

	view := View{"auth": ViewAuth{Auth: auth}}
	if load == nil {
		return view, "ok"
	}

	data, err := load(ctx, auth)
	if err != nil {
		status, msg := apperror.Classify(err)
		if status >= 500 {
			slog.Error("view loader failed", slog.Any("error", err))
		}
		// The rotated token must still reach the page or the client is
		// locked out of its own session.
		return View{"auth": ViewAuth{Auth: auth, Error: msg}}, "error"
	}
	for k, v := range data {
		if k != "auth" {
			view[k] = v
		}
	}
	return view, "ok"
}

func errorView(msg string) View {
	return View{"auth": ViewAuth{Error: msg}}
}
