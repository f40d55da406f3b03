package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// changeSet holds records staged in a session and not yet committed.
type changeSet struct {
	users     []User
	roles     []Role
	userRoles []UserRole
}

func (c changeSet) empty() bool {
	return len(c.users) == 0 && len(c.roles) == 0 && len(c.userRoles) == 0
}

// backend is the committed-state side of a store. Lookups never observe a
// session's pending changes; apply makes a change set durable atomically or
// not at all.
type backend interface {
	userByID(ctx context.Context, id uuid.UUID) (User, error)
	userByEmail(ctx context.Context, email string) (User, error)
	roleByName(ctx context.Context, name string) (Role, error)
	apply(ctx context.Context, changes changeSet) error
}

// session implements Session on top of any backend. It is not safe for
// concurrent use; open one per operation.
type session struct {
	backend backend
	pending changeSet
	closed  bool
}

func newSession(b backend) *session {
	return &session{backend: b}
}

func (s *session) Users() UserRepository { return sessionUsers{s} }

func (s *session) Roles() RoleRepository { return sessionRoles{s} }

func (s *session) Close() error {
	s.pending = changeSet{}
	s.closed = true
	return nil
}

func (s *session) check(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return ctx.Err()
}

func (s *session) commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	changes := s.pending
	s.pending = changeSet{}
	if changes.empty() {
		return nil
	}
	return s.backend.apply(ctx, changes)
}

type sessionUsers struct{ s *session }

func (r sessionUsers) Add(ctx context.Context, user User) error {
	if err := r.s.check(ctx); err != nil {
		return err
	}
	user.Roles = nil
	r.s.pending.users = append(r.s.pending.users, user)
	return nil
}

func (r sessionUsers) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	if err := r.s.check(ctx); err != nil {
		return User{}, err
	}
	return r.s.backend.userByID(ctx, id)
}

func (r sessionUsers) GetByEmail(ctx context.Context, email string) (User, error) {
	if err := r.s.check(ctx); err != nil {
		return User{}, err
	}
	return r.s.backend.userByEmail(ctx, email)
}

func (r sessionUsers) AddRole(ctx context.Context, userID uuid.UUID, role Role) error {
	if err := r.s.check(ctx); err != nil {
		return err
	}
	r.s.pending.userRoles = append(r.s.pending.userRoles, UserRole{UserID: userID, RoleID: role.ID})
	return nil
}

func (r sessionUsers) Commit(ctx context.Context) error {
	return r.s.commit(ctx)
}

type sessionRoles struct{ s *session }

func (r sessionRoles) GetByName(ctx context.Context, name string) (Role, error) {
	if err := r.s.check(ctx); err != nil {
		return Role{}, err
	}
	return r.s.backend.roleByName(ctx, name)
}

func (r sessionRoles) Add(ctx context.Context, role Role) error {
	if err := r.s.check(ctx); err != nil {
		return err
	}
	r.s.pending.roles = append(r.s.pending.roles, role)
	return nil
}

func (r sessionRoles) Commit(ctx context.Context) error {
	return r.s.commit(ctx)
}

// foldKey is the comparison key for case-insensitive emails and role names.
func foldKey(s string) string {
	return strings.ToLower(s)
}
