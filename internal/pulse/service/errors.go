package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/pulse/internal/pulse/store"
)

// Error kinds surfaced to the transport layer. Every error a service returns
// wraps exactly one of these, match with errors.Is.
var (
	ErrValidation   = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("service unavailable")
)

var (
	ErrTokenExpired = fmt.Errorf("%w: token expired", ErrUnauthorized)
	ErrTokenInvalid = fmt.Errorf("%w: token invalid", ErrUnauthorized)
	ErrTokenRevoked = fmt.Errorf("%w: token revoked", ErrUnauthorized)

	// ErrInvalidCredentials is the only outcome of a failed login, whatever
	// the cause.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
)

// Retryable reports whether err is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func validationError(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// mapStoreError folds store errors into the service taxonomy. Anything the
// store did not classify is treated as transient.
func mapStoreError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: user", ErrNotFound)
	case errors.Is(err, store.ErrAlreadyExists):
		field := strings.TrimPrefix(err.Error(), store.ErrAlreadyExists.Error())
		field = strings.TrimPrefix(field, ": ")
		if field == "" {
			field = "username or email"
		}
		return fmt.Errorf("%w: %s already taken", ErrConflict, field)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
