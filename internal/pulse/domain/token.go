package domain

import "time"

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds until the access token expires
}

// RefreshToken models the stored refresh token record. Only the fingerprint
// of the opaque token is persisted.
type RefreshToken struct {
	ID        string // ULID
	UserID    int64
	TokenHash string // base64url SHA-256
	SessionID string // stays the same across rotations of one login
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Watermark is a user's revocation state. Every access token carries the
// generation it was issued under; tokens below Generation are dead.
type Watermark struct {
	UserID     int64
	Generation int64
	RevokedAt  time.Time
}

// Accepts reports whether a token minted at generation gen is still live.
func (w Watermark) Accepts(gen int64) bool {
	return gen >= w.Generation
}
