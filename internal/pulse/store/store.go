package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// MigrationStatus is what ApplyMigrations did.
type MigrationStatus string

const (
	MigrationCreated       MigrationStatus = "created"
	MigrationAlreadyExists MigrationStatus = "already-exists"
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Sub-repositories are handed out as methods so a Tx can
// expose the same surface while making nested transactions impossible.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	Revocations() Revocations

	// ApplyMigrations brings the schema up to date. It is idempotent.
	ApplyMigrations(ctx context.Context) (MigrationStatus, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped view of the repositories.
type Tx interface {
	Users() Users
	RefreshTokens() RefreshTokens
	Revocations() Revocations
}

type Users interface {
	// CreateUser inserts a user and returns it with id and timestamps set.
	// A username or email collision returns ErrAlreadyExists; the unique
	// constraints decide, there is no prior lookup.
	CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error)

	GetUserByID(ctx context.Context, id int64) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// UpdateProfile applies a validated patch and bumps updated_at.
	UpdateProfile(ctx context.Context, id int64, patch domain.ProfilePatch) (domain.User, error)

	UpdateSubscription(ctx context.Context, id int64, sub domain.SubscriptionType) (domain.User, error)

	// SetAvatar replaces avatar_ref. A nil ref clears it.
	SetAvatar(ctx context.Context, id int64, ref *string) (domain.User, error)

	UpdatePasswordHash(ctx context.Context, id int64, newHash string) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked and reports whether this call did it,
	// so two concurrent rotations of the same token cannot both win.
	RevokeRefreshToken(ctx context.Context, hash string) (bool, error)

	// RevokeAllUserRefreshTokens is bulk revocation on logout/password change.
	RevokeAllUserRefreshTokens(ctx context.Context, userID int64) error

	// DeleteExpiredRefreshTokens removes expired or revoked tokens last
	// touched before cutoff and returns how many went.
	DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

type Revocations interface {
	// GetWatermark returns the user's watermark. Users that were never
	// revoked get a zero watermark, not ErrNotFound.
	GetWatermark(ctx context.Context, userID int64) (domain.Watermark, error)

	// BumpWatermark increments the user's generation atomically and returns
	// the new watermark.
	BumpWatermark(ctx context.Context, userID int64, at time.Time) (domain.Watermark, error)
}
