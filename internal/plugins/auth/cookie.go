package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// SessionCookieName is the HTTP cookie that carries the session id.
const SessionCookieName = "sessionId"

// TokenParam is both the query parameter and the header that may carry the
// bearer token.
const TokenParam = "token"

// CredentialsFrom extracts the session cookie and bearer token from a
// request. The token is looked up in the query string, then the token
// header, then an Authorization: Bearer header.
func CredentialsFrom(c echo.Context) Credentials {
	var creds Credentials
	if cookie, err := c.Cookie(SessionCookieName); err == nil {
		creds.SessionID = cookie.Value
	}

	req := c.Request()
	switch {
	case c.QueryParam(TokenParam) != "":
		creds.Token = c.QueryParam(TokenParam)
	case req.Header.Get(TokenParam) != "":
		creds.Token = req.Header.Get(TokenParam)
	default:
		if h := req.Header.Get(echo.HeaderAuthorization); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			creds.Token = strings.TrimSpace(h[7:])
		}
	}
	return creds
}

// SetSessionCookie sets the session cookie on the response. The cookie is
// HttpOnly and lives as long as the browser session.
func SetSessionCookie(c echo.Context, sessionID string, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
