package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/pkg/cryptox"
	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
)

// AuthService runs the session lifecycle: a user is anonymous until login,
// authenticated while their tokens are above the watermark, and revoked by
// logout or a password change. A later login starts a new session.
type AuthService struct {
	Users  *UserService
	Tokens *TokenService

	// HashCost is the bcrypt cost for new password hashes. Zero means
	// cryptox.PasswordCost.
	HashCost int
}

func (s *AuthService) hashCost() int {
	if s.HashCost > 0 {
		return s.HashCost
	}
	return cryptox.PasswordCost
}

// Register validates and stores a new user. The returned user still carries
// the hash; callers must only expose User.Public.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return domain.User{}, validationError(err)
	}
	email, err := domain.NormalizeEmail(email)
	if err != nil {
		return domain.User{}, validationError(err)
	}
	if err := cryptox.ValidatePasswordLength(password); err != nil {
		return domain.User{}, validationError(err)
	}

	hash, err := cryptox.HashPasswordCost(password, s.hashCost())
	if err != nil {
		return domain.User{}, validationError(err)
	}

	u, err := s.Users.CreateUser(ctx, username, email, hash)
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered", slog.Int64("user_id", u.ID))
	return u, nil
}

// Login checks the credentials and opens a new session. An identifier with
// an '@' is looked up as an email, otherwise as a username. Unknown users
// and wrong passwords both return ErrInvalidCredentials after a bcrypt
// comparison, so neither the error nor the timing tells them apart.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (domain.TokenPair, domain.User, error) {
	l := slogx.FromContext(ctx)

	u, err := s.lookup(ctx, identifier)
	if errors.Is(err, ErrNotFound) {
		cryptox.BurnPasswordCheck(password, s.hashCost())
		l.Info("login failed", slog.String("reason", "unknown_user"))
		return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("login failed", slog.String("reason", "bad_password"), slog.Int64("user_id", u.ID))
		return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
	}

	pair, err := s.Tokens.IssueTokenPair(ctx, u)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	l.Info("login succeeded", slog.Int64("user_id", u.ID))
	return pair, u, nil
}

func (s *AuthService) lookup(ctx context.Context, identifier string) (domain.User, error) {
	if strings.Contains(identifier, "@") {
		email, err := domain.NormalizeEmail(identifier)
		if err != nil {
			return domain.User{}, ErrNotFound
		}
		return s.Users.GetByEmail(ctx, email)
	}
	if identifier == "" {
		return domain.User{}, ErrNotFound
	}
	return s.Users.GetByUsername(ctx, identifier)
}

// VerifyToken authenticates an access token.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (jwtx.Claims, error) {
	return s.Tokens.VerifyAccess(ctx, token)
}

// Refresh exchanges a refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	return s.Tokens.ExchangeRefreshToken(ctx, refreshToken)
}

// ChangePassword re-checks the old password, stores the new hash and then
// revokes every token issued before the change.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if err := cryptox.ValidatePasswordLength(newPassword); err != nil {
		return validationError(err)
	}
	if oldPassword == newPassword {
		return validationf("new password must differ from the old one")
	}

	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err := cryptox.VerifyPassword(oldPassword, u.PasswordHash); err != nil {
		slogx.FromContext(ctx).Info("password change rejected", slog.Int64("user_id", userID))
		return ErrInvalidCredentials
	}

	hash, err := cryptox.HashPasswordCost(newPassword, s.hashCost())
	if err != nil {
		return validationError(err)
	}
	// The new hash and the revocation commit together: there is no window
	// where the new password works and old tokens are still accepted.
	var w domain.Watermark
	err = s.Users.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
			return err
		}
		var revokeErr error
		w, revokeErr = s.Tokens.revokeTx(ctx, tx, userID)
		return revokeErr
	})
	if err != nil {
		return mapStoreError("change password", err)
	}
	s.Tokens.revoked(ctx, userID, w)

	slogx.FromContext(ctx).Info("password changed", slog.Int64("user_id", userID))
	return nil
}

// Logout revokes all of the user's tokens. Logging out an already revoked
// user just moves the watermark again.
func (s *AuthService) Logout(ctx context.Context, userID int64) error {
	_, err := s.Tokens.RevokeUser(ctx, userID)
	return err
}
