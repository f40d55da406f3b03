package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// Sha256Hasher produces base64(SHA-256(password)). The digest is a pure
// function of the password bytes: no salt, no cost factor.
type Sha256Hasher struct{}

func NewSha256Hasher() *Sha256Hasher {
	return &Sha256Hasher{}
}

// Hash implements Hasher.Hash
func (h *Sha256Hasher) Hash(password string) (string, error) {
	return h.digest(password), nil
}

// Verify implements Hasher.Verify
func (h *Sha256Hasher) Verify(password, hashedPassword string) (bool, error) {
	if hashedPassword == "" {
		return false, nil
	}
	expected := h.digest(password)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hashedPassword)) == 1, nil
}

func (h *Sha256Hasher) digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}
