package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
)

type revocationsRepo struct {
	db dbtx
}

func (r *revocationsRepo) GetWatermark(ctx context.Context, userID int64) (domain.Watermark, error) {
	w := domain.Watermark{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT generation, revoked_at FROM revocations WHERE user_id = ?`, userID,
	).Scan(&w.Generation, timestamp{&w.RevokedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Watermark{UserID: userID}, nil
	}
	if err != nil {
		return domain.Watermark{}, err
	}
	return w, nil
}

func (r *revocationsRepo) BumpWatermark(ctx context.Context, userID int64, at time.Time) (domain.Watermark, error) {
	w := domain.Watermark{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO revocations (user_id, generation, revoked_at) VALUES (?, 1, ?)
		 ON CONFLICT (user_id) DO UPDATE
		 SET generation = revocations.generation + 1, revoked_at = excluded.revoked_at
		 RETURNING generation, revoked_at`,
		userID, at.UTC(),
	).Scan(&w.Generation, timestamp{&w.RevokedAt})
	if err != nil {
		return domain.Watermark{}, mapConstraint(err)
	}
	return w, nil
}
