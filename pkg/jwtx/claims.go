package jwtx

import (
	"slices"
	"strconv"
	"time"

	"github.com/aussiebroadwan/pulse/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. Access tokens are capped at an hour by config
// validation, these are only the fallbacks.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// MaxAccessTokenTTL is the longest lifetime we ever sign an access token for.
	MaxAccessTokenTTL = time.Hour
)

// Claims are the access-token claims. They are a snapshot of the user at
// issuance time and are never refreshed in place.
type Claims struct {
	jwt.RegisteredClaims

	UserID   int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`

	// Generation is the user's revocation generation when the token was
	// minted. Anything below the current generation has been revoked.
	Generation int64 `json:"gen"`
}

// NewAccessClaims builds minimally-correct claims.
func NewAccessClaims(
	userID int64,
	username, email string,
	generation int64,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        idx.NewAt(now).String(),
		},
		UserID:     userID,
		Username:   username,
		Email:      email,
		Generation: generation,
	}
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateSubject makes sure the numeric id and the sub claim agree.
func (c *Claims) ValidateSubject() error {
	if c.UserID <= 0 || c.Subject != strconv.FormatInt(c.UserID, 10) {
		return ErrInvalidClaim
	}
	return nil
}

// ValidateExpiryAt ensures the token hasn’t expired (exp) and isn’t before nbf.
func (c *Claims) ValidateExpiryAt(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiry is ValidateExpiryAt for the current time with no leeway.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryAt(time.Now().UTC(), 0)
}
