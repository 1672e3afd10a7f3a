package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/sentinel/internal/apperror"
	"github.com/keyxmakerx/sentinel/internal/database"
	"github.com/keyxmakerx/sentinel/internal/plugins/auth"
	"github.com/keyxmakerx/sentinel/internal/sanitize"
)

// Messages returned to the client for registry rule violations.
const (
	msgAlreadyRegistered       = "already registered."
	msgGithubAlreadyRegistered = "github user name already registered."
	msgNotRegistered           = "not registered."
	msgUserDoesNotExist        = "user does not exist."
	msgCannotDepriveAuthority  = "cannot deprive authority."
	msgCannotDeleteMyself      = "cannot delete myself."
	msgPassConfirmMismatch     = "confirmation pass do not match."
)

// UserService defines the registry operations. Every mutation expects to be
// called inside the store transaction opened by the request envelope.
type UserService interface {
	List(ctx context.Context) ([]auth.User, error)
	Get(ctx context.Context, userID string) (*auth.User, error)
	Add(ctx context.Context, caller *auth.Auth, req AddUserRequest) error
	Modify(ctx context.Context, caller *auth.Auth, req ModifyUserRequest) error
	Remove(ctx context.Context, caller *auth.Auth, userID string) error
}

// userService implements UserService.
type userService struct {
	users      auth.UserRepository
	sessions   auth.SessionRepository
	bcryptCost int
}

// NewUserService creates a new user registry service.
func NewUserService(users auth.UserRepository, sessions auth.SessionRepository, bcryptCost int) UserService {
	return &userService{users: users, sessions: sessions, bcryptCost: bcryptCost}
}

func (s *userService) List(ctx context.Context) ([]auth.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing users: %w", err))
	}
	return users, nil
}

// Get returns nil when the user does not exist.
func (s *userService) Get(ctx context.Context, userID string) (*auth.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	return user, nil
}

func (s *userService) Add(ctx context.Context, caller *auth.Auth, req AddUserRequest) error {
	existing, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if existing != nil {
		return apperror.NewConflict(msgAlreadyRegistered)
	}

	if err := s.checkGithubFree(ctx, req.GithubUserName, ""); err != nil {
		return err
	}

	hash, err := auth.HashPassword(req.Pass, s.bcryptCost)
	if err != nil {
		return apperror.NewInternal(err)
	}

	user := &auth.User{
		UserID:         req.UserID,
		Name:           sanitize.PlainText(req.Name),
		PasswordHash:   hash,
		Permissions:    normalizePermissions(req.Permissions),
		GithubUserName: req.GithubUserName,
		Secret:         req.Secret,
	}
	if user.Name == "" {
		return apperror.NewValidation("invalid parameter: name (required).")
	}

	if err := s.users.Create(ctx, user); err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.NewConflict(msgAlreadyRegistered)
		}
		return apperror.NewInternal(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user added",
		slog.String("user_id", user.UserID),
		slog.String("by", caller.UserID),
		slog.Bool("admin", user.IsAdmin()),
	)
	return nil
}

func (s *userService) Modify(ctx context.Context, caller *auth.Auth, req ModifyUserRequest) error {
	target, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if target == nil {
		return apperror.NewNotFound(msgNotRegistered)
	}

	var perms *int
	if req.Permissions != nil {
		p := normalizePermissions(*req.Permissions)
		perms = &p
	}

	callerIsAdmin := caller.Permissions&auth.PermAdmin != 0
	if target.UserID == caller.UserID {
		if perms != nil && *perms != target.Permissions {
			if callerIsAdmin {
				return apperror.NewForbidden(msgCannotDepriveAuthority)
			}
			// Non-administrators may not grant themselves the admin bit.
			return apperror.NewForbidden("")
		}
	} else if !callerIsAdmin {
		return apperror.NewForbidden("")
	}

	if err := s.checkGithubFree(ctx, req.GithubUserName, target.UserID); err != nil {
		return err
	}

	if req.Pass != "" && req.Pass != req.PassConfirm {
		return apperror.NewValidation(msgPassConfirmMismatch)
	}

	update := auth.UserUpdate{
		UserID:         target.UserID,
		Name:           sanitize.PlainText(req.Name),
		Permissions:    perms,
		GithubUserName: req.GithubUserName,
		Secret:         req.Secret,
	}
	if update.Name == "" {
		return apperror.NewValidation("invalid parameter: name (required).")
	}
	if req.Pass != "" {
		hash, err := auth.HashPassword(req.Pass, s.bcryptCost)
		if err != nil {
			return apperror.NewInternal(err)
		}
		update.PasswordHash = &hash
	}

	if err := s.users.Update(ctx, update); err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.NewConflict(msgGithubAlreadyRegistered)
		}
		return apperror.NewInternal(fmt.Errorf("modifying user: %w", err))
	}

	slog.Info("user modified",
		slog.String("user_id", target.UserID),
		slog.String("by", caller.UserID),
		slog.Bool("password_changed", update.PasswordHash != nil),
	)
	return nil
}

func (s *userService) Remove(ctx context.Context, caller *auth.Auth, userID string) error {
	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	if target == nil {
		return apperror.NewNotFound(msgUserDoesNotExist)
	}
	if target.UserID == caller.UserID {
		return apperror.NewForbidden(msgCannotDeleteMyself)
	}

	if _, err := s.users.Delete(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("removing user: %w", err))
	}
	n, err := s.sessions.DeleteByUser(ctx, userID)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("removing sessions: %w", err))
	}

	slog.Info("user removed",
		slog.String("user_id", userID),
		slog.String("by", caller.UserID),
		slog.Int64("sessions", n),
	)
	return nil
}

// checkGithubFree fails with Conflict when name is linked to a user other
// than owner.
func (s *userService) checkGithubFree(ctx context.Context, name, owner string) error {
	if name == "" {
		return nil
	}
	linked, err := s.users.FindByGithubUser(ctx, name)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("finding github user: %w", err))
	}
	if linked != nil && linked.UserID != owner {
		return apperror.NewConflict(msgGithubAlreadyRegistered)
	}
	return nil
}
