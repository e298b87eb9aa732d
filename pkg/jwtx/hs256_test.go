package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newPair(t *testing.T, opts jwtx.VerifyOptions) (*jwtx.HS256Signer, *jwtx.HS256Verifier) {
	t.Helper()

	s, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)
	v, err := jwtx.NewVerifierHS256(testSecret, opts)
	require.NoError(t, err)
	return s, v
}

func TestHS256RoundTrip(t *testing.T) {
	s, v := newPair(t, jwtx.VerifyOptions{Issuer: "pulse", Audience: []string{"pulse-api"}})
	require.Equal(t, "HS256", s.Alg())

	now := time.Now()
	token, err := s.Sign(jwtx.NewAccessClaims(7, "alice", "alice@example.com", 3, time.Minute, "pulse", []string{"pulse-api"}, now))
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.UserID)
	require.Equal(t, "7", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, int64(3), claims.Generation)
	require.NotEmpty(t, claims.ID)
}

func TestHS256RejectsWeakSecret(t *testing.T) {
	_, err := jwtx.NewSignerHS256([]byte("short"))
	require.ErrorIs(t, err, jwtx.ErrWeakSecret)

	_, err = jwtx.NewVerifierHS256([]byte("short"), jwtx.VerifyOptions{})
	require.ErrorIs(t, err, jwtx.ErrWeakSecret)
}

func TestHS256Failures(t *testing.T) {
	now := time.Now()
	s, v := newPair(t, jwtx.VerifyOptions{Issuer: "pulse"})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := jwtx.NewSignerHS256([]byte(strings.Repeat("x", 32)))
		require.NoError(t, err)
		token, err := other.Sign(jwtx.NewAccessClaims(1, "a", "a@b.c", 0, time.Minute, "pulse", nil, now))
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := s.Sign(jwtx.NewAccessClaims(1, "a", "a@b.c", 0, time.Minute, "pulse", nil, now.Add(-time.Hour)))
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		token, err := s.Sign(jwtx.NewAccessClaims(1, "a", "a@b.c", 0, time.Minute, "elsewhere", nil, now))
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("unsigned token", func(t *testing.T) {
		c := jwtx.NewAccessClaims(1, "a", "a@b.c", 0, time.Minute, "pulse", nil, now)
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.Error(t, err)
	})

	t.Run("missing expiry", func(t *testing.T) {
		c := jwtx.NewAccessClaims(1, "a", "a@b.c", 0, time.Minute, "pulse", nil, now)
		c.ExpiresAt = nil
		token, err := s.Sign(c)
		require.NoError(t, err)

		_, err = v.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidClaim)
	})
}

func TestHS256UsesInjectedClock(t *testing.T) {
	issued := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issued.Add(30 * time.Second)

	s, v := newPair(t, jwtx.VerifyOptions{Now: func() time.Time { return clock }})
	token, err := s.Sign(jwtx.NewAccessClaims(9, "bob", "bob@example.com", 0, time.Minute, "", nil, issued))
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.NoError(t, err)

	clock = issued.Add(2 * time.Minute)
	_, err = v.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}
