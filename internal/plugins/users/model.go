// Package users provides the user registry: listing, adding, modifying and
// removing users through the JSON API, and the page views that show them.
package users

import "github.com/keyxmakerx/sentinel/internal/plugins/auth"

// --- Request DTOs (bound from HTTP requests) ---

// AddUserRequest is the body of POST /api/addUser.
type AddUserRequest struct {
	UserID         string `json:"userId" validate:"required,userid"`
	Name           string `json:"name" validate:"required,max=128"`
	Pass           string `json:"pass" validate:"required,max=128"`
	GithubUserName string `json:"githubUserName" validate:"omitempty,max=128"`
	Secret         string `json:"secret" validate:"omitempty,base32,max=32"`
	Permissions    int    `json:"permissions" validate:"gte=0"`
}

// ModifyUserRequest is the body of PUT /api/modifyUser. An empty pass keeps
// the current password; absent permissions keep the current mask. The
// GitHub link and secret are replaced as sent, so omitting them clears them.
type ModifyUserRequest struct {
	UserID         string `json:"userId" validate:"required,max=128"`
	Name           string `json:"name" validate:"required,max=128"`
	Pass           string `json:"pass" validate:"max=128"`
	PassConfirm    string `json:"passConfirm" validate:"max=128"`
	GithubUserName string `json:"githubUserName" validate:"omitempty,max=128"`
	Secret         string `json:"secret" validate:"omitempty,base32,max=32"`
	Permissions    *int   `json:"permissions" validate:"omitempty,gte=0"`
}

// RemoveUserRequest is the query of DELETE /api/removeUser.
type RemoveUserRequest struct {
	UserID string `query:"userId" validate:"required,max=128"`
}

// UserIDResponse echoes the affected user.
type UserIDResponse struct {
	UserID string `json:"userId"`
}

// --- View payloads ---

// UserView is a user as shown on a page. Secret is only filled in for the
// user themselves or an administrator, for second-factor enrolment.
type UserView struct {
	UserID         string `json:"userId"`
	Name           string `json:"name"`
	Permissions    int    `json:"permissions"`
	GithubUserName string `json:"githubUserName,omitempty"`
	Secret         string `json:"secret,omitempty"`
}

func toView(u *auth.User, viewer *auth.Auth) UserView {
	v := UserView{
		UserID:         u.UserID,
		Name:           u.Name,
		Permissions:    u.Permissions,
		GithubUserName: u.GithubUserName,
	}
	if viewer != nil && (viewer.UserID == u.UserID || viewer.Permissions&auth.PermAdmin != 0) {
		v.Secret = u.Secret
	}
	return v
}

// normalizePermissions maps any non-zero mask to the administrator bit.
func normalizePermissions(p int) int {
	if p != 0 {
		return auth.PermAdmin
	}
	return 0
}
