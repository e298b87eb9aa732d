package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
)

type usersRepo struct {
	db  dbtx
	now func() time.Time
}

func (r *usersRepo) CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error) {
	now := r.now()
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, subscription_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+userColumns,
		username, email, passwordHash, string(domain.SubscriptionFree), now, now,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapConstraint(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id int64) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *usersRepo) getOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) UpdateProfile(ctx context.Context, id int64, patch domain.ProfilePatch) (domain.User, error) {
	if patch.IsEmpty() {
		return r.GetUserByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	if patch.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *patch.Username)
	}
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.SetAvatar {
		sets = append(sets, "avatar_ref = ?")
		args = append(args, mapOptionalString(patch.AvatarRef))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now(), id)

	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+userColumns,
		args...,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapConstraint(err)
	}
	return u, nil
}

func (r *usersRepo) UpdateSubscription(ctx context.Context, id int64, sub domain.SubscriptionType) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET subscription_type = ?, updated_at = ? WHERE id = ? RETURNING `+userColumns,
		string(sub), r.now(), id,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapConstraint(err)
	}
	return u, nil
}

func (r *usersRepo) SetAvatar(ctx context.Context, id int64, ref *string) (domain.User, error) {
	return r.UpdateProfile(ctx, id, domain.ProfilePatch{SetAvatar: true, AvatarRef: ref})
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, id int64, newHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, r.now(), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
