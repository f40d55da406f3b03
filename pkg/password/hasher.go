// Package password hashes and verifies user passwords.
//
// The default scheme is an unsalted SHA-256 digest, kept so that digests
// produced by earlier deployments continue to verify. Deployments can opt into
// bcrypt; the bcrypt hasher still accepts SHA-256 digests so existing users
// can sign in after the switch.
package password

import (
	"fmt"
	"strings"
)

// Scheme names a hashing algorithm.
type Scheme string

const (
	SchemeSHA256 Scheme = "sha256"
	SchemeBcrypt Scheme = "bcrypt"
)

// Hasher defines the interface for password hashing implementations
type Hasher interface {
	// Hash hashes a password
	Hash(password string) (string, error)

	// Verify checks if the provided password matches the stored hash.
	// A mismatch is reported as (false, nil).
	Verify(password, hashedPassword string) (bool, error)
}

// NewHasher returns the hasher for the named scheme. An empty name selects
// SHA-256.
func NewHasher(scheme string) (Hasher, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(scheme))) {
	case "", SchemeSHA256:
		return NewSha256Hasher(), nil
	case SchemeBcrypt:
		return NewMigratingHasher(NewBcryptHasher(0), NewSha256Hasher()), nil
	default:
		return nil, fmt.Errorf("unsupported password hash scheme: %s (supported: sha256, bcrypt)", scheme)
	}
}
