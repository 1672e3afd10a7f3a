package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/sentinel/internal/apperror"
)

func TestCORS_PreflightAllowsTokenHeader(t *testing.T) {
	e := echo.New()
	mw := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowCredentials: true})
	handler := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()

	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), TokenHeader) {
		t.Errorf("expected token header allowed, got %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials allowed")
	}
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	e := echo.New()
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})(
		func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/views/index", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()

	_ = handler(e.NewContext(req, rec))
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no CORS headers for unknown origin")
	}
}

func TestTrustedProxies(t *testing.T) {
	extract := proxyIPExtractor([]string{"10.0.0.0/8", "not-a-cidr"})

	tests := []struct {
		name   string
		remote string
		header string
		value  string
		want   string
	}{
		{"forwarded by trusted proxy", "10.1.2.3:5555", "X-Forwarded-For", "203.0.113.9, 10.1.2.3", "203.0.113.9"},
		{"spoofed leftmost hop", "10.1.2.3:5555", "X-Forwarded-For", "1.1.1.1, 203.0.113.9", "203.0.113.9"},
		{"real ip from trusted proxy", "10.1.2.3:5555", "X-Real-IP", "203.0.113.9", "203.0.113.9"},
		{"untrusted peer", "198.51.100.7:5555", "X-Forwarded-For", "203.0.113.9", "198.51.100.7"},
		{"untrusted peer real ip", "198.51.100.7:5555", "X-Real-IP", "203.0.113.9", "198.51.100.7"},
		{"loopback not trusted by default", "127.0.0.1:5555", "X-Forwarded-For", "203.0.113.9", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set(tt.header, tt.value)
			if ip := extract(req); ip != tt.want {
				t.Errorf("expected %s, got %s", tt.want, ip)
			}
		})
	}
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	e := echo.New()
	handler := Recovery()(func(c echo.Context) error { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := handler(e.NewContext(req, httptest.NewRecorder()))
	if !apperror.Is(err, apperror.KindInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if _, msg := apperror.Classify(err); msg != apperror.SystemErrorMessage {
		t.Errorf("expected generic message, got %q", msg)
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	handler := SecurityHeaders(false)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	_ = handler(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))

	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected no-store")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS when disabled")
	}
}
