package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
)

type usersRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *usersRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error) {
	now := r.now()
	return scanUser(r.db.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, subscription_type, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+userColumns,
		username, email, passwordHash, string(domain.SubscriptionFree), now,
	))
}

func (r *usersRepo) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (r *usersRepo) UpdateProfile(ctx context.Context, id int64, patch domain.ProfilePatch) (domain.User, error) {
	if patch.IsEmpty() {
		return r.GetUserByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.SetAvatar {
		add("avatar_ref", patch.AvatarRef)
	}
	add("updated_at", r.now())
	args = append(args, id)

	return scanUser(r.db.QueryRow(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+
			` WHERE id = $`+strconv.Itoa(len(args))+` RETURNING `+userColumns,
		args...,
	))
}

func (r *usersRepo) UpdateSubscription(ctx context.Context, id int64, sub domain.SubscriptionType) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`UPDATE users SET subscription_type = $1, updated_at = $2 WHERE id = $3 RETURNING `+userColumns,
		string(sub), r.now(), id,
	))
}

func (r *usersRepo) SetAvatar(ctx context.Context, id int64, ref *string) (domain.User, error) {
	return r.UpdateProfile(ctx, id, domain.ProfilePatch{SetAvatar: true, AvatarRef: ref})
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, id int64, newHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		newHash, r.now(), id,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
