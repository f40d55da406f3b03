package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrRoleNotFound      = errors.New("role not found")
	ErrDuplicateEmail    = errors.New("email already in use")
	ErrDuplicateRoleName = errors.New("role name already in use")
	ErrDuplicateUserRole = errors.New("user already holds role")
	ErrSessionClosed     = errors.New("session closed")
)

// Store hands out sessions against one persistence backend.
type Store interface {
	// Begin opens a session scoped to a single logical operation.
	Begin(ctx context.Context) (Session, error)
	Close() error
}

// Session is a unit of work. Records added through either repository are
// staged in one change set and become visible to lookups only after Commit.
type Session interface {
	Users() UserRepository
	Roles() RoleRepository
	// Close discards anything staged and not yet committed.
	Close() error
}

// RoleRepository defines the role operations the service depends on.
type RoleRepository interface {
	// GetByName matches names case-insensitively. Returns ErrRoleNotFound.
	GetByName(ctx context.Context, name string) (Role, error)
	Add(ctx context.Context, role Role) error
	Commit(ctx context.Context) error
}

// UserRepository defines the user operations the service depends on.
// Lookups return the user with its roles populated.
type UserRepository interface {
	Add(ctx context.Context, user User) error
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	// GetByEmail matches emails case-insensitively. Returns ErrUserNotFound.
	GetByEmail(ctx context.Context, email string) (User, error)
	AddRole(ctx context.Context, userID uuid.UUID, role Role) error
	Commit(ctx context.Context) error
}
