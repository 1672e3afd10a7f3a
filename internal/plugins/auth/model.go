// Package auth owns the session-and-credential core: the session store,
// password and one-time-password verification, token rotation, and the
// permission gate every privileged operation passes through.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"encoding/json"
	"time"
)

// PermAdmin is the administrator bit of a permission mask. A required mask
// of zero means "any authenticated user".
const PermAdmin = 0x1

// User is a row of the user registry. The password hash and TOTP secret
// never leave the server through JSON.
type User struct {
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	PasswordHash   string `json:"-"`
	Permissions    int    `json:"permissions"`
	GithubUserName string `json:"githubUserName,omitempty"`
	Secret         string `json:"-"`
}

// IsAdmin reports whether the user carries the administrator bit.
func (u *User) IsAdmin() bool {
	return u.Permissions&PermAdmin != 0
}

// Session links a cookie-held session id to a user and the current token.
type Session struct {
	SessionID string
	UserID    string
	Token     string
	CreatedAt time.Time
}

// Auth is the identity resolved for a single request. It is never stored;
// every request derives it again from the cookie and token pair.
type Auth struct {
	UserID      string `json:"userId"`
	Permissions int    `json:"permissions"`
	Token       string `json:"token"`
}

// Has reports whether the identity satisfies a required permission mask.
func (a *Auth) Has(required int) bool {
	return required == 0 || a.Permissions&required != 0
}

// Credentials are the raw values a request presents: the session cookie and
// the bearer token.
type Credentials struct {
	SessionID string
	Token     string
}

// LoginResult is returned by a successful login. The session id goes into
// the cookie; the token goes into the response body.
type LoginResult struct {
	SessionID string
	Auth      Auth
}

// --- Views ---

// ViewAuth is the identity block of a view model: either the resolved
// identity or an error message for the page to display.
type ViewAuth struct {
	Auth  *Auth
	Error string
}

// MarshalJSON renders {userId, permissions, token}, {error}, or both when
// the viewer resolved but the page data could not be loaded.
func (v ViewAuth) MarshalJSON() ([]byte, error) {
	if v.Auth == nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{v.Error})
	}
	return json.Marshal(struct {
		*Auth
		Error string `json:"error,omitempty"`
	}{v.Auth, v.Error})
}

// View is the payload of a soft-mode page render: "auth" plus whatever the
// page loader returned.
type View map[string]any

// Auth returns the identity block of the view.
func (v View) Auth() ViewAuth {
	a, _ := v["auth"].(ViewAuth)
	return a
}
