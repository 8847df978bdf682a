// Package auth: secret hashing.
//
// WHY BCRYPT?
// bcrypt is deliberately slow, which makes brute-forcing a leaked hash
// expensive. It generates a random salt per hash and embeds salt and cost in
// its output, so a single TEXT column is enough:
//
//	$2a$12$<22-char salt><31-char hash>
//
// Both account passwords and recovery answers go through PasswordService.
// A recovery answer unlocks the account just like the password does, so it
// gets the same protection.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used in production.
const DefaultCost = 12

// MaxSecretBytes is bcrypt's input limit. Longer inputs are rejected rather
// than silently truncated.
const MaxSecretBytes = 72

// ErrMismatch is returned by Verify when the plaintext does not match.
var ErrMismatch = errors.New("auth: secret does not match")

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so the cost can be injected: tests use
// cost 4 to run in milliseconds.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService. A cost outside bcrypt's
// accepted range falls back to DefaultCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash hashes plaintext with bcrypt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxSecretBytes {
		return "", fmt.Errorf("auth: secret must be %d bytes or fewer", MaxSecretBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing secret: %w", err)
	}

	return string(hashed), nil
}

// Verify checks plaintext against a stored bcrypt hash. It returns nil on a
// match, ErrMismatch on a mismatch (including an empty stored hash), and a
// wrapped error if the hash is malformed.
//
// bcrypt.CompareHashAndPassword compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return ErrMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("auth: comparing secret hash: %w", err)
	}
	return nil
}
