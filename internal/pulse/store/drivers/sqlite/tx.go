package sqlite

import (
	"database/sql"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/store"
)

type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func newTx(tx *sql.Tx, now func() time.Time) *txStore {
	return &txStore{tx: tx, now: now}
}

func (t *txStore) Users() store.Users                 { return &usersRepo{db: t.tx, now: t.now} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx, now: t.now} }
func (t *txStore) Revocations() store.Revocations     { return &revocationsRepo{db: t.tx} }
