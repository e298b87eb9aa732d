package cryptox

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds in bytes. bcrypt only reads the first 72 bytes, so
// anything longer would silently collide with its own prefix.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// PasswordCost is the bcrypt work factor for new hashes.
const PasswordCost = 12

var (
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d bytes", MinPasswordLength)
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
	ErrPasswordMismatch = errors.New("password does not match")
)

// ValidatePasswordLength checks a plaintext password against the length bounds.
func ValidatePasswordLength(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return ErrPasswordTooShort
	case len(password) > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword returns a bcrypt hash of password at PasswordCost.
func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, PasswordCost)
}

// HashPasswordCost is HashPassword with an explicit work factor. Tests use
// bcrypt.MinCost to keep runs fast.
func HashPasswordCost(password string, cost int) (string, error) {
	if err := ValidatePasswordLength(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a bcrypt hash. Any
// failure, including a malformed hash, is reported as ErrPasswordMismatch.
func VerifyPassword(password, encodedHash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)); err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

var dummyHashes sync.Map // cost -> []byte

// BurnPasswordCheck performs a bcrypt comparison against a throwaway hash of
// the given cost. Call it when there is no user to check against so the
// missing-user path takes as long as a wrong password.
func BurnPasswordCheck(password string, cost int) {
	h, ok := dummyHashes.Load(cost)
	if !ok {
		fresh, err := bcrypt.GenerateFromPassword([]byte("pulse-dummy-password"), cost)
		if err != nil {
			return
		}
		h, _ = dummyHashes.LoadOrStore(cost, fresh)
	}
	_ = bcrypt.CompareHashAndPassword(h.([]byte), []byte(password))
}
