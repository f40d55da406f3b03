package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements Hasher using bcrypt
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. A cost of 0 selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash implements Hasher.Hash
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// Verify implements Hasher.Verify
func (h *BcryptHasher) Verify(password, hashedPassword string) (bool, error) {
	if password == "" || hashedPassword == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil // Password doesn't match, but not an error
		}
		return false, err
	}

	return true, nil
}

// isBcryptDigest reports whether a stored digest uses the modular crypt
// format bcrypt emits ($2a$, $2b$, $2y$).
func isBcryptDigest(hashedPassword string) bool {
	return strings.HasPrefix(hashedPassword, "$2")
}

// MigratingHasher hashes new passwords with its primary scheme and verifies
// digests of either scheme, so users hashed under SHA-256 can still sign in
// after a deployment switches to bcrypt.
type MigratingHasher struct {
	primary *BcryptHasher
	legacy  *Sha256Hasher
}

func NewMigratingHasher(primary *BcryptHasher, legacy *Sha256Hasher) *MigratingHasher {
	return &MigratingHasher{primary: primary, legacy: legacy}
}

// Hash implements Hasher.Hash
func (h *MigratingHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

// Verify implements Hasher.Verify
func (h *MigratingHasher) Verify(password, hashedPassword string) (bool, error) {
	if isBcryptDigest(hashedPassword) {
		return h.primary.Verify(password, hashedPassword)
	}
	return h.legacy.Verify(password, hashedPassword)
}
