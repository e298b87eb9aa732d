package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestHousekeeping_DeletesDeadRefreshTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "alice", "correct horse")

	pair, _, err := f.auth.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	hk := service.NewHousekeepingService(f.store, slogx.Discard(), time.Minute)
	hk.Now = func() time.Time { return f.clock.Now() }

	n, err := hk.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	// refresh TTL is an hour, retention another day
	hk.Now = func() time.Time { return f.clock.Now().Add(26 * time.Hour) }
	n, err = hk.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrTokenInvalid)
}

func TestHousekeeping_StartStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	hk := service.NewHousekeepingService(f.store, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)

	hk.Start()
	hk.Stop()
}
