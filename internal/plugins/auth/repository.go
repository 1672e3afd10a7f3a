package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/keyxmakerx/sentinel/internal/database"
)

// UserRepository defines the data access contract for the user registry.
// Lookups return (nil, nil) when no row matches.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (*User, error)
	FindByGithubUser(ctx context.Context, githubUserName string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, update UserUpdate) error
	Delete(ctx context.Context, userID string) (bool, error)
}

// UserUpdate carries a modification of an existing user. Nil pointers keep
// the stored value.
type UserUpdate struct {
	UserID         string
	Name           string
	PasswordHash   *string
	Permissions    *int
	GithubUserName string
	Secret         string
}

// SessionRepository is the session store.
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	// FindByCookie matches on the session id and token together, so a stale
	// token never resolves a live session. Returns (nil, nil) on no match.
	FindByCookie(ctx context.Context, sessionID, token string) (*Session, error)
	UpdateToken(ctx context.Context, sessionID, current, next string) (bool, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// userRepository implements UserRepository over the statement catalog.
type userRepository struct {
	store *database.Store
	box   *secretBox
}

// UserRepositoryOption configures NewUserRepository.
type UserRepositoryOption func(*userRepository) error

// WithSecretKey encrypts TOTP secrets at rest with a key derived from key.
// An empty key leaves secrets in plaintext.
func WithSecretKey(key string) UserRepositoryOption {
	return func(r *userRepository) error {
		box, err := newSecretBox(key)
		if err != nil {
			return err
		}
		r.box = box
		return nil
	}
}

// NewUserRepository creates a user repository backed by the given store.
func NewUserRepository(store *database.Store, opts ...UserRepositoryOption) (UserRepository, error) {
	r := &userRepository{store: store}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *userRepository) FindByID(ctx context.Context, userID string) (*User, error) {
	return r.findOne(ctx, "findUser", database.Params{"userId": userID})
}

func (r *userRepository) FindByGithubUser(ctx context.Context, githubUserName string) (*User, error) {
	if githubUserName == "" {
		return nil, nil
	}
	return r.findOne(ctx, "findGithubUser", database.Params{"githubUserName": githubUserName})
}

func (r *userRepository) findOne(ctx context.Context, key string, params database.Params) (*User, error) {
	u := &User{}
	found, err := r.store.Get(ctx, key, params,
		&u.UserID, &u.Name, &u.PasswordHash, &u.Permissions, &u.GithubUserName, &u.Secret)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if u.Secret, err = r.box.open(u.Secret); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.UserID, err)
	}
	return u, nil
}

// List returns every user ordered by id, without hashes or secrets.
func (r *userRepository) List(ctx context.Context) ([]User, error) {
	var users []User
	err := r.store.All(ctx, "listUsers", nil, func(row database.Scanner) error {
		var u User
		if err := row.Scan(&u.UserID, &u.Name, &u.Permissions, &u.GithubUserName); err != nil {
			return err
		}
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	var n int
	if _, err := r.store.Get(ctx, "countUsers", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Create inserts a user. Uniqueness violations are returned as driver errors;
// use database.IsUniqueViolation to detect them.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	secret, err := r.box.seal(user.Secret)
	if err != nil {
		return err
	}
	_, err = r.store.Exec(ctx, "addUser", database.Params{
		"userId":         user.UserID,
		"name":           user.Name,
		"pass":           user.PasswordHash,
		"permissions":    user.Permissions,
		"githubUserName": nullable(user.GithubUserName),
		"secret":         secret,
	})
	return err
}

func (r *userRepository) Update(ctx context.Context, update UserUpdate) error {
	secret, err := r.box.seal(update.Secret)
	if err != nil {
		return err
	}
	params := database.Params{
		"userId":         update.UserID,
		"name":           update.Name,
		"pass":           nil,
		"permissions":    nil,
		"githubUserName": nullable(update.GithubUserName),
		"secret":         secret,
	}
	if update.PasswordHash != nil {
		params["pass"] = *update.PasswordHash
	}
	if update.Permissions != nil {
		params["permissions"] = *update.Permissions
	}

	// MySQL reports unchanged rows as unaffected, so the count is not checked.
	_, err = r.store.Exec(ctx, "modifyUser", params)
	return err
}

func (r *userRepository) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := r.store.Exec(ctx, "removeUser", database.Params{"userId": userID})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// nullable stores empty optional strings as NULL so the unique index only
// covers linked accounts.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sessionRepository implements SessionRepository over the statement catalog.
type sessionRepository struct {
	store *database.Store
}

// NewSessionRepository creates a session store backed by the given store.
func NewSessionRepository(store *database.Store) SessionRepository {
	return &sessionRepository{store: store}
}

func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	_, err := r.store.Exec(ctx, "addSession", database.Params{
		"sessionId": session.SessionID,
		"userId":    session.UserID,
		"token":     session.Token,
		"createdAt": session.CreatedAt.Unix(),
	})
	return err
}

func (r *sessionRepository) FindByCookie(ctx context.Context, sessionID, token string) (*Session, error) {
	s := &Session{}
	found, err := r.store.Get(ctx, "findSession",
		database.Params{"sessionId": sessionID, "token": token},
		&s.SessionID, &s.UserID, &s.Token)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return s, nil
}

// UpdateToken replaces the session's token only while it still equals
// current, so each token can be rotated once.
func (r *sessionRepository) UpdateToken(ctx context.Context, sessionID, current, next string) (bool, error) {
	n, err := r.store.Exec(ctx, "modifySession", database.Params{
		"sessionId": sessionID,
		"oldToken":  current,
		"token":     next,
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sessionRepository) Delete(ctx context.Context, sessionID string) error {
	_, err := r.store.Exec(ctx, "removeSession", database.Params{"sessionId": sessionID})
	return err
}

func (r *sessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.store.Exec(ctx, "removeUserSessions", database.Params{"userId": userID})
}

// newSession builds a session with fresh random identifiers.
func newSession(userID string, now time.Time) *Session {
	return &Session{
		SessionID: generateToken(),
		UserID:    userID,
		Token:     generateToken(),
		CreatedAt: now.UTC(),
	}
}
