package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/internal/pulse/store/drivers/sqlite"
	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// recorder captures notifications and revocation callbacks.
type recorder struct {
	mu      sync.Mutex
	events  []domain.Event
	revoked []int64
}

func (r *recorder) Send(_ int64, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) UserRevoked(userID int64, _ domain.Watermark) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, userID)
}

func (r *recorder) eventTypes() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store  *sqlite.Store
	users  *service.UserService
	tokens *service.TokenService
	auth   *service.AuthService
	rec    *recorder
	clock  *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.ApplyMigrations(context.Background())
	require.NoError(t, err)

	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}

	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256(testSecret, jwtx.VerifyOptions{Issuer: "pulse-test", Now: clk.Now})
	require.NoError(t, err)

	rec := &recorder{}
	users := service.NewUserService(s, rec)
	tokens := &service.TokenService{
		Store:      s,
		Signer:     signer,
		Verifier:   verifier,
		Issuer:     "pulse-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		Now:        clk.Now,
	}
	tokens.OnRevoke(rec)

	return &fixture{
		store:  s,
		users:  users,
		tokens: tokens,
		auth:   &service.AuthService{Users: users, Tokens: tokens, HashCost: bcrypt.MinCost},
		rec:    rec,
		clock:  clk,
	}
}

func (f *fixture) register(t *testing.T, username, password string) domain.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), username, username+"@example.com", password)
	require.NoError(t, err)
	return u
}
