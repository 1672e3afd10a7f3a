package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/sentinel/internal/apperror"
	"github.com/keyxmakerx/sentinel/internal/database"
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods -- they never touch the repositories directly.
type AuthService interface {
	// Authenticate resolves a cookie and token pair into an identity. It
	// returns (nil, nil) when the pair does not resolve. With rotate set, the
	// session gets a fresh token and the returned Auth carries it.
	Authenticate(ctx context.Context, sessionID, token string, rotate bool) (*Auth, error)

	// Login verifies a password and optional one-time password and issues a
	// new session.
	Login(ctx context.Context, userID, password, otp string) (*LoginResult, error)

	// LoginExternal issues a session for the user linked to a verified
	// GitHub user name.
	LoginExternal(ctx context.Context, githubUserName string) (*LoginResult, error)

	// Logout destroys one session.
	Logout(ctx context.Context, sessionID string) error

	// Bootstrap creates an administrator when the registry is empty.
	Bootstrap(ctx context.Context, userID, password string) (bool, error)
}

// Transactor runs work inside the store's single transaction. It is
// satisfied by *database.Store.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	InTx(ctx context.Context) bool
}

// Options tunes the authenticator.
type Options struct {
	BcryptCost int

	// RotationStrict fails authentication when a rotated token cannot be
	// stored, instead of returning the identity with the old token.
	RotationStrict bool

	// Now is the clock used for TOTP and session timestamps.
	Now func() time.Time
}

// authService implements AuthService over the session store and user registry.
type authService struct {
	users    UserRepository
	sessions SessionRepository
	tx       Transactor
	opts     Options

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(users UserRepository, sessions SessionRepository, tx Transactor, opts Options) AuthService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = 12
	}
	return &authService{
		users:    users,
		sessions: sessions,
		tx:       tx,
		opts:     opts,
	}
}

func (s *authService) Authenticate(ctx context.Context, sessionID, token string, rotate bool) (*Auth, error) {
	if sessionID == "" || token == "" {
		return nil, nil
	}

	session, err := s.sessions.FindByCookie(ctx, sessionID, token)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding session: %w", err))
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding session owner: %w", err))
	}
	if user == nil {
		return nil, nil
	}

	auth := &Auth{UserID: user.UserID, Permissions: user.Permissions, Token: token}
	if !rotate {
		return auth, nil
	}

	next := generateToken()
	rotated, err := s.rotate(ctx, sessionID, token, next)
	if err != nil {
		if s.opts.RotationStrict {
			return nil, apperror.NewInternal(fmt.Errorf("rotating token: %w", err))
		}
		slog.Warn("token rotation failed, keeping current token",
			slog.String("user_id", user.UserID),
			slog.Any("error", err),
		)
		return auth, nil
	}
	if !rotated {
		// Another request spent this token between lookup and rotation.
		return nil, nil
	}

	auth.Token = next
	return auth, nil
}

// rotate swaps the session's token from current to next. It reports false
// when current was no longer the session's token.
func (s *authService) rotate(ctx context.Context, sessionID, current, next string) (bool, error) {
	var rotated bool
	err := s.withTx(ctx, func(ctx context.Context) error {
		var err error
		rotated, err = s.sessions.UpdateToken(ctx, sessionID, current, next)
		return err
	})
	return rotated, err
}

// withTx runs fn in the caller's transaction when there is one, so its
// writes commit or roll back with the operation's own. Otherwise it opens
// a transaction just for fn.
func (s *authService) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx.InTx(ctx) {
		return fn(ctx)
	}
	return s.tx.RunInTx(ctx, fn)
}

func (s *authService) Login(ctx context.Context, userID, password, otp string) (*LoginResult, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	// Both factors are always checked, against a dummy hash for unknown ids,
	// so every failure costs one bcrypt comparison.
	secret, hash := "", s.dummyPasswordHash()
	if user != nil {
		secret, hash = user.Secret, user.PasswordHash
	}
	otpOK := verifyOTP(otp, secret, s.opts.Now())
	passOK := verifyPassword(password, hash)
	if user == nil || !otpOK || !passOK {
		return nil, apperror.NewUnauthenticated("")
	}

	return s.issueSession(ctx, user, "password")
}

func (s *authService) LoginExternal(ctx context.Context, githubUserName string) (*LoginResult, error) {
	user, err := s.users.FindByGithubUser(ctx, githubUserName)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding github user: %w", err))
	}
	if user == nil {
		return nil, apperror.NewUnauthenticated("")
	}
	return s.issueSession(ctx, user, "github")
}

// issueSession stores a new session. Only this insert runs in a
// transaction; credential checks happen before it so they never hold the
// transaction gate.
func (s *authService) issueSession(ctx context.Context, user *User, method string) (*LoginResult, error) {
	session := newSession(user.UserID, s.opts.Now())
	err := s.withTx(ctx, func(ctx context.Context) error {
		if err := s.sessions.Create(ctx, session); err != nil {
			return apperror.NewInternal(fmt.Errorf("creating session: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.UserID),
		slog.String("method", method),
	)

	return &LoginResult{
		SessionID: session.SessionID,
		Auth: Auth{
			UserID:      user.UserID,
			Permissions: user.Permissions,
			Token:       session.Token,
		},
	}, nil
}

func (s *authService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session: %w", err))
	}
	return nil
}

func (s *authService) Bootstrap(ctx context.Context, userID, password string) (bool, error) {
	if userID == "" || password == "" {
		return false, nil
	}

	created := false
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.users.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		hash, err := HashPassword(password, s.opts.BcryptCost)
		if err != nil {
			return err
		}
		if err := s.users.Create(ctx, &User{
			UserID:       userID,
			Name:         userID,
			PasswordHash: hash,
			Permissions:  PermAdmin,
		}); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("bootstrapping administrator: %w", err)
	}

	if created {
		slog.Info("bootstrap administrator created", slog.String("user_id", userID))
	}
	return created, nil
}

// dummyPasswordHash returns a hash that no password matches, computed once
// at the configured cost.
func (s *authService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := HashPassword(generateToken(), s.opts.BcryptCost)
		if err != nil {
			slog.Error("computing dummy password hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// generateToken returns a random v4 UUID string (122 random bits).
func generateToken() string {
	return uuid.NewString()
}

// Compile-time check that the store satisfies Transactor.
var _ Transactor = (*database.Store)(nil)
