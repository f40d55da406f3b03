package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// memoryState is the committed data shared by the in-memory and file stores.
// Callers hold the owning store's lock.
type memoryState struct {
	users     map[uuid.UUID]User        // userID -> User (without roles)
	roles     map[uuid.UUID]Role        // roleID -> Role
	userRoles map[uuid.UUID][]uuid.UUID // userID -> roleIDs in assignment order
	emails    map[string]uuid.UUID      // folded email -> userID
	roleNames map[string]uuid.UUID      // folded name -> roleID
}

func newMemoryState() *memoryState {
	return &memoryState{
		users:     make(map[uuid.UUID]User),
		roles:     make(map[uuid.UUID]Role),
		userRoles: make(map[uuid.UUID][]uuid.UUID),
		emails:    make(map[string]uuid.UUID),
		roleNames: make(map[string]uuid.UUID),
	}
}

func (m *memoryState) withRoles(u User) User {
	ids := m.userRoles[u.ID]
	u.Roles = make([]Role, 0, len(ids))
	for _, id := range ids {
		u.Roles = append(u.Roles, m.roles[id])
	}
	return u
}

func (m *memoryState) userByID(id uuid.UUID) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.withRoles(u), nil
}

func (m *memoryState) userByEmail(email string) (User, error) {
	id, ok := m.emails[foldKey(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return m.withRoles(m.users[id]), nil
}

func (m *memoryState) roleByName(name string) (Role, error) {
	id, ok := m.roleNames[foldKey(name)]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return m.roles[id], nil
}

func (m *memoryState) hasUserRole(ur UserRole) bool {
	for _, id := range m.userRoles[ur.UserID] {
		if id == ur.RoleID {
			return true
		}
	}
	return false
}

// validate checks a change set against committed data and against itself.
func (m *memoryState) validate(changes changeSet) error {
	newUsers := make(map[uuid.UUID]struct{}, len(changes.users))
	emails := make(map[string]struct{}, len(changes.users))
	for _, u := range changes.users {
		key := foldKey(u.Email)
		if _, ok := m.emails[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
		}
		if _, ok := emails[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
		}
		if _, ok := m.users[u.ID]; ok {
			return fmt.Errorf("user id already exists: %s", u.ID)
		}
		emails[key] = struct{}{}
		newUsers[u.ID] = struct{}{}
	}

	newRoles := make(map[uuid.UUID]struct{}, len(changes.roles))
	names := make(map[string]struct{}, len(changes.roles))
	for _, r := range changes.roles {
		key := foldKey(r.Name)
		if _, ok := m.roleNames[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRoleName, r.Name)
		}
		if _, ok := names[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRoleName, r.Name)
		}
		if _, ok := m.roles[r.ID]; ok {
			return fmt.Errorf("role id already exists: %s", r.ID)
		}
		names[key] = struct{}{}
		newRoles[r.ID] = struct{}{}
	}

	pairs := make(map[UserRole]struct{}, len(changes.userRoles))
	for _, ur := range changes.userRoles {
		if _, ok := m.users[ur.UserID]; !ok {
			if _, staged := newUsers[ur.UserID]; !staged {
				return fmt.Errorf("%w: %s", ErrUserNotFound, ur.UserID)
			}
		}
		if _, ok := m.roles[ur.RoleID]; !ok {
			if _, staged := newRoles[ur.RoleID]; !staged {
				return fmt.Errorf("%w: %s", ErrRoleNotFound, ur.RoleID)
			}
		}
		if _, ok := pairs[ur]; ok || m.hasUserRole(ur) {
			return fmt.Errorf("%w: user %s role %s", ErrDuplicateUserRole, ur.UserID, ur.RoleID)
		}
		pairs[ur] = struct{}{}
	}
	return nil
}

// apply writes a validated change set.
func (m *memoryState) apply(changes changeSet) {
	for _, u := range changes.users {
		m.users[u.ID] = u
		m.emails[foldKey(u.Email)] = u.ID
	}
	for _, r := range changes.roles {
		m.roles[r.ID] = r
		m.roleNames[foldKey(r.Name)] = r.ID
	}
	for _, ur := range changes.userRoles {
		m.userRoles[ur.UserID] = append(m.userRoles[ur.UserID], ur.RoleID)
	}
}

func (m *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range m.users {
		c.users[k] = v
	}
	for k, v := range m.roles {
		c.roles[k] = v
	}
	for k, v := range m.userRoles {
		c.userRoles[k] = append([]uuid.UUID(nil), v...)
	}
	for k, v := range m.emails {
		c.emails[k] = v
	}
	for k, v := range m.roleNames {
		c.roleNames[k] = v
	}
	return c
}

// InMemoryStore implements Store using in-memory storage
type InMemoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemoryState()}
}

func (s *InMemoryStore) Begin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newSession(s), nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func (s *InMemoryStore) userByID(ctx context.Context, id uuid.UUID) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.userByID(id)
}

func (s *InMemoryStore) userByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.userByEmail(email)
}

func (s *InMemoryStore) roleByName(ctx context.Context, name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.roleByName(name)
}

func (s *InMemoryStore) apply(ctx context.Context, changes changeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.state.validate(changes); err != nil {
		return err
	}
	s.state.apply(changes)
	return nil
}
