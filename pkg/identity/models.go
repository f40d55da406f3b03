package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity record. PasswordHash holds the hasher's digest, never
// the plaintext.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Roles        []Role    `json:"-"`
}

// Role is a named permission tag.
type Role struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRole records that a user holds a role. (UserID, RoleID) is unique.
type UserRole struct {
	UserID uuid.UUID `json:"user_id"`
	RoleID uuid.UUID `json:"role_id"`
}

// UserView is the externally visible projection of a User.
type UserView struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Roles []string  `json:"roles"`
}

// RegisterParams carries the fields accepted by Register.
type RegisterParams struct {
	Name     string
	Email    string
	Password string
}

// HasRole reports whether the user holds the role with the given id.
func (u User) HasRole(roleID uuid.UUID) bool {
	for _, r := range u.Roles {
		if r.ID == roleID {
			return true
		}
	}
	return false
}

// ToView projects a user for callers. Roles is always non-nil.
func (u User) ToView() UserView {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Name)
	}
	return UserView{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Roles: roles,
	}
}
