package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/tendant/user-permission/pkg/errors"
	"github.com/tendant/user-permission/pkg/password"
)

const MinPasswordLength = 6

const (
	msgNameRequired     = "Name is required"
	msgEmailRequired    = "Email is required"
	msgPasswordTooShort = "Password must be at least 6 characters"
	msgRoleRequired     = "Role name is required"
	msgEmailTaken       = "user already exists with this email"
	msgUserNotFound     = "user not found"
)

// Service implements registration, authentication, role assignment and
// lookup. Client-triggerable failures are returned as *apperrors.Error;
// anything else is a store failure and is returned wrapped.
type Service struct {
	store  Store
	hasher password.Hasher
	now    func() time.Time
}

type Option func(*Service)

func WithHasher(hasher password.Hasher) Option {
	return func(s *Service) {
		s.hasher = hasher
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		hasher: password.NewSha256Hasher(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withSession runs fn in a fresh session and closes it afterwards.
func (s *Service) withSession(ctx context.Context, fn func(Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()
	return fn(sess)
}

func validateRegistration(params RegisterParams) error {
	if strings.TrimSpace(params.Name) == "" {
		return apperrors.InvalidInput("name", msgNameRequired)
	}
	if strings.TrimSpace(params.Email) == "" {
		return apperrors.InvalidInput("email", msgEmailRequired)
	}
	if strings.TrimSpace(params.Password) == "" || utf8.RuneCountInString(params.Password) < MinPasswordLength {
		return apperrors.InvalidInput("password", msgPasswordTooShort)
	}
	return nil
}

// Register creates a user with no roles.
func (s *Service) Register(ctx context.Context, params RegisterParams) (UserView, error) {
	if err := validateRegistration(params); err != nil {
		return UserView{}, err
	}

	var view UserView
	err := s.withSession(ctx, func(sess Session) error {
		users := sess.Users()

		_, err := users.GetByEmail(ctx, params.Email)
		if err == nil {
			return apperrors.Conflict(msgEmailTaken)
		}
		if !errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("failed to look up email: %w", err)
		}

		digest, err := s.hasher.Hash(params.Password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		user := User{
			ID:           uuid.New(),
			Name:         params.Name,
			Email:        params.Email,
			PasswordHash: digest,
			CreatedAt:    s.now(),
		}
		if err := users.Add(ctx, user); err != nil {
			return fmt.Errorf("failed to stage user: %w", err)
		}
		if err := users.Commit(ctx); err != nil {
			// Lost a race with a concurrent registration for the same email
			if errors.Is(err, ErrDuplicateEmail) {
				return apperrors.Conflict(msgEmailTaken)
			}
			return fmt.Errorf("failed to save user: %w", err)
		}

		view = user.ToView()
		return nil
	})
	if err != nil {
		return UserView{}, err
	}
	return view, nil
}

// Authenticate returns the user's view when email and password match. An
// unknown email and a wrong password both report (UserView{}, false, nil).
func (s *Service) Authenticate(ctx context.Context, email, plaintext string) (UserView, bool, error) {
	var (
		view UserView
		ok   bool
	)
	err := s.withSession(ctx, func(sess Session) error {
		user, err := sess.Users().GetByEmail(ctx, email)
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up email: %w", err)
		}

		match, err := s.hasher.Verify(plaintext, user.PasswordHash)
		if err != nil {
			return fmt.Errorf("failed to verify password: %w", err)
		}
		if !match {
			return nil
		}

		view, ok = user.ToView(), true
		return nil
	})
	if err != nil {
		return UserView{}, false, err
	}
	return view, ok, nil
}

// AssignRole grants roleName to the user, creating the role on first use.
// Assigning a role the user already holds is a no-op.
func (s *Service) AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	if strings.TrimSpace(roleName) == "" {
		return apperrors.InvalidInput("roleName", msgRoleRequired)
	}

	return s.withSession(ctx, func(sess Session) error {
		users := sess.Users()

		user, err := users.GetByID(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			return apperrors.NotFound(msgUserNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to look up user: %w", err)
		}

		role, err := s.ensureRole(ctx, sess.Roles(), roleName)
		if err != nil {
			return err
		}

		if user.HasRole(role.ID) {
			return nil
		}

		if err := users.AddRole(ctx, user.ID, role); err != nil {
			return fmt.Errorf("failed to stage role assignment: %w", err)
		}
		if err := users.Commit(ctx); err != nil {
			// A concurrent call assigned the same role first
			if errors.Is(err, ErrDuplicateUserRole) {
				return nil
			}
			if errors.Is(err, ErrUserNotFound) {
				return apperrors.NotFound(msgUserNotFound)
			}
			return fmt.Errorf("failed to save role assignment: %w", err)
		}
		return nil
	})
}

// ensureRole returns the role named name, creating and committing it if it
// does not exist yet.
func (s *Service) ensureRole(ctx context.Context, roles RoleRepository, name string) (Role, error) {
	role, err := roles.GetByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrRoleNotFound) {
		return Role{}, fmt.Errorf("failed to look up role: %w", err)
	}

	role = Role{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := roles.Add(ctx, role); err != nil {
		return Role{}, fmt.Errorf("failed to stage role: %w", err)
	}
	if err := roles.Commit(ctx); err != nil {
		if !errors.Is(err, ErrDuplicateRoleName) {
			return Role{}, fmt.Errorf("failed to save role: %w", err)
		}
		// Another caller created it between our lookup and commit
		role, err = roles.GetByName(ctx, name)
		if err != nil {
			return Role{}, fmt.Errorf("failed to look up role: %w", err)
		}
	}
	return role, nil
}

// GetByID returns the user's view, or false when no such user exists.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (UserView, bool, error) {
	var (
		view UserView
		ok   bool
	)
	err := s.withSession(ctx, func(sess Session) error {
		user, err := sess.Users().GetByID(ctx, id)
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up user: %w", err)
		}
		view, ok = user.ToView(), true
		return nil
	})
	if err != nil {
		return UserView{}, false, err
	}
	return view, ok, nil
}
