package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/sentinel/internal/apperror"
	"github.com/keyxmakerx/sentinel/internal/plugins/auth"
)

type stubAuthn struct {
	auth    *auth.Auth
	err     error
	calls   int
	rotated bool
	inTx    bool
}

func (s *stubAuthn) Authenticate(ctx context.Context, sessionID, token string, rotate bool) (*auth.Auth, error) {
	s.calls++
	s.rotated = rotate
	s.inTx, _ = ctx.Value(txKey{}).(bool)
	if sessionID != "sid" || token != "tok" {
		return nil, nil
	}
	return s.auth, s.err
}

type txKey struct{}

type stubTx struct {
	runs   int
	failed error
}

func (s *stubTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.runs++
	err := fn(context.WithValue(ctx, txKey{}, true))
	s.failed = err
	return err
}

type addInput struct {
	UserID string `json:"userId" validate:"required,userid"`
	Secret string `json:"secret" validate:"omitempty,base32,max=32"`
}

func serve(t *testing.T, h echo.HandlerFunc, method, body string, withCreds bool) (*httptest.ResponseRecorder, ErrorBody) {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()
	e.Any("/api/op", h)

	req := httptest.NewRequest(method, "/api/op", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if withCreds {
		req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "sid"})
		req.Header.Set("token", "tok")
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var eb ErrorBody
	if rec.Code >= 400 {
		if err := json.Unmarshal(rec.Body.Bytes(), &eb); err != nil {
			t.Fatalf("decoding error body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, eb
}

func TestHandle_Success(t *testing.T) {
	authn := &stubAuthn{auth: &auth.Auth{UserID: "admin", Permissions: auth.PermAdmin, Token: "tok"}}
	tx := &stubTx{}
	env := New(authn, tx)

	h := Handle(env, Options{Method: http.MethodPost, Permissions: Perm(auth.PermAdmin), Transactional: true},
		func(ctx context.Context, req Request[addInput]) (Response, error) {
			if req.Auth.UserID != "admin" {
				t.Errorf("expected caller admin, got %+v", req.Auth)
			}
			if inTx, _ := ctx.Value(txKey{}).(bool); !inTx {
				t.Error("expected body inside the transaction")
			}
			return JSON(http.StatusCreated, map[string]string{"userId": req.Input.UserID}), nil
		})

	rec, _ := serve(t, h, http.MethodPost, `{"userId":"alice"}`, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"userId":"alice"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if tx.runs != 1 || !authn.inTx || authn.rotated {
		t.Errorf("expected identity resolved inside one transaction without rotation: runs=%d inTx=%v rotated=%v",
			tx.runs, authn.inTx, authn.rotated)
	}
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	authn := &stubAuthn{}
	h := Handle(New(authn, &stubTx{}), Options{Method: http.MethodPost, Permissions: Perm(0)},
		func(ctx context.Context, req Request[addInput]) (Response, error) {
			t.Error("body must not run")
			return NoContent(), nil
		})

	rec, eb := serve(t, h, http.MethodGet, "", true)
	if rec.Code != http.StatusMethodNotAllowed || eb.Status != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if authn.calls != 0 {
		t.Error("identity must not be resolved for a wrong method")
	}
}

func TestHandle_Validation(t *testing.T) {
	h := Handle(New(&stubAuthn{}, &stubTx{}), Options{Method: http.MethodPost},
		func(ctx context.Context, req Request[addInput]) (Response, error) {
			t.Error("body must not run")
			return NoContent(), nil
		})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing", `{}`, "userId (required)"},
		{"pattern", `{"userId":"-bad"}`, "userId (userid)"},
		{"secret alphabet", `{"userId":"ok","secret":"0189"}`, "secret (base32)"},
		{"secret length", `{"userId":"ok","secret":"` + strings.Repeat("A", 33) + `"}`, "secret (max=32)"},
		{"malformed", `{"userId":`, "malformed request body."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, eb := serve(t, h, http.MethodPost, tt.body, false)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if !strings.Contains(eb.Message, tt.want) {
				t.Errorf("expected message containing %q, got %q", tt.want, eb.Message)
			}
		})
	}
}

func TestHandle_HardGate(t *testing.T) {
	body := func(ctx context.Context, req Request[struct{}]) (Response, error) {
		return NoContent(), nil
	}

	// No credentials.
	h := Handle(New(&stubAuthn{auth: &auth.Auth{UserID: "u"}}, &stubTx{}), Options{Permissions: Perm(0)}, body)
	rec, eb := serve(t, h, http.MethodDelete, "", false)
	if rec.Code != http.StatusUnauthorized || eb.Message != "authentication failed." {
		t.Errorf("expected 401, got %d %q", rec.Code, eb.Message)
	}

	// Missing admin bit.
	h = Handle(New(&stubAuthn{auth: &auth.Auth{UserID: "u"}}, &stubTx{}), Options{Permissions: Perm(auth.PermAdmin)}, body)
	rec, eb = serve(t, h, http.MethodDelete, "", true)
	if rec.Code != http.StatusForbidden || eb.Message != "have not permissions." {
		t.Errorf("expected 403, got %d %q", rec.Code, eb.Message)
	}
}

func TestHandle_ErrorsRollBackAndAreTranslated(t *testing.T) {
	tx := &stubTx{}
	h := Handle(New(&stubAuthn{}, tx), Options{Transactional: true},
		func(ctx context.Context, req Request[struct{}]) (Response, error) {
			return Response{}, apperror.NewInternal(errors.New("statement findUser failed: secret detail"))
		})

	rec, eb := serve(t, h, http.MethodPost, "", false)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if eb.Message != apperror.SystemErrorMessage || strings.Contains(rec.Body.String(), "secret detail") {
		t.Errorf("expected generic message, got %s", rec.Body.String())
	}
	if tx.failed == nil {
		t.Error("expected the transaction to see the failure")
	}
}

func TestHandle_NoPermissionsSkipsIdentity(t *testing.T) {
	authn := &stubAuthn{}
	h := Handle(New(authn, &stubTx{}), Options{Method: http.MethodPost},
		func(ctx context.Context, req Request[struct{}]) (Response, error) {
			if req.Auth != nil {
				t.Error("expected no identity")
			}
			return NoContent(), nil
		})

	rec, _ := serve(t, h, http.MethodPost, "", true)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if authn.calls != 0 {
		t.Error("expected no identity resolution")
	}
}

func TestWriteError_EchoHTTPError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/nope", nil), rec)

	if err := WriteError(c, echo.ErrNotFound); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "not found.") {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

// captureInfoLogs routes the default logger into a buffer at info level, as
// in production, until the test ends.
func captureInfoLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestHandle_LogsEntryAndExitAtInfo(t *testing.T) {
	logs := captureInfoLogs(t)
	h := Handle(New(&stubAuthn{}, &stubTx{}), Options{Method: http.MethodPost},
		func(ctx context.Context, req Request[struct{}]) (Response, error) {
			return NoContent(), nil
		})

	serve(t, h, http.MethodPost, "", false)

	out := logs.String()
	for _, msg := range []string{`msg="api begin"`, `msg="api end"`} {
		if !strings.Contains(out, msg) {
			t.Errorf("expected %s in info logs, got %q", msg, out)
		}
	}
}
