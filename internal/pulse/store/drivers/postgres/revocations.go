package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/jackc/pgx/v5"
)

type revocationsRepo struct {
	db dbtx
}

func (r *revocationsRepo) GetWatermark(ctx context.Context, userID int64) (domain.Watermark, error) {
	w := domain.Watermark{UserID: userID}
	err := r.db.QueryRow(ctx,
		`SELECT generation, revoked_at FROM revocations WHERE user_id = $1`, userID,
	).Scan(&w.Generation, &w.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Watermark{UserID: userID}, nil
	}
	if err != nil {
		return domain.Watermark{}, mapError(err)
	}
	return w, nil
}

// BumpWatermark is a single upsert, so concurrent revocations of the same
// user each get their own generation.
func (r *revocationsRepo) BumpWatermark(ctx context.Context, userID int64, at time.Time) (domain.Watermark, error) {
	w := domain.Watermark{UserID: userID}
	err := r.db.QueryRow(ctx,
		`INSERT INTO revocations (user_id, generation, revoked_at) VALUES ($1, 1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET generation = revocations.generation + 1, revoked_at = EXCLUDED.revoked_at
		 RETURNING generation, revoked_at`,
		userID, at.UTC(),
	).Scan(&w.Generation, &w.RevokedAt)
	if err != nil {
		return domain.Watermark{}, mapError(err)
	}
	return w, nil
}
