// Package postgres is the pgx backed store used for multi-instance
// deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// NewStore creates the connection pool and checks it can reach the server.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	const op = "store/postgres/NewStore"

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if err := fn(&txStore{tx: tx, now: s.now}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) Users() store.Users                 { return &usersRepo{db: s.pool, now: s.now} }
func (s *Store) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: s.pool, now: s.now} }
func (s *Store) Revocations() store.Revocations     { return &revocationsRepo{db: s.pool} }

type txStore struct {
	tx  pgx.Tx
	now func() time.Time
}

func (t *txStore) Users() store.Users                 { return &usersRepo{db: t.tx, now: t.now} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx, now: t.now} }
func (t *txStore) Revocations() store.Revocations     { return &revocationsRepo{db: t.tx} }

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case "users_username_key":
			return fmt.Errorf("%w: username", store.ErrAlreadyExists)
		case "users_email_key":
			return fmt.Errorf("%w: email", store.ErrAlreadyExists)
		}
		return store.ErrAlreadyExists
	case pgerrcode.ForeignKeyViolation:
		return store.ErrNotFound
	}
	return err
}

const userColumns = `id, username, email, password_hash, subscription_type, avatar_ref, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u   domain.User
		sub string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &sub, &u.AvatarRef, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.User{}, mapError(err)
	}
	u.Subscription = domain.SubscriptionType(sub)
	return u, nil
}
