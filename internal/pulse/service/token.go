package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/pkg/cryptox"
	"github.com/aussiebroadwan/pulse/pkg/idx"
	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
)

// RevocationListener is told about every successful RevokeUser, after the
// new watermark is committed.
type RevocationListener interface {
	UserRevoked(userID int64, w domain.Watermark)
}

// TokenService issues and verifies credentials. Access tokens are JWTs
// checked against the user's revocation watermark, refresh tokens are opaque
// and stored by fingerprint.
type TokenService struct {
	Store      store.Store
	Signer     jwtx.Signer
	Verifier   jwtx.Verifier
	Issuer     string
	Audience   []string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now overrides the clock, tests only.
	Now func() time.Time

	mu        sync.RWMutex
	listeners []RevocationListener
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// OnRevoke registers l for revocation callbacks.
func (s *TokenService) OnRevoke(l RevocationListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// IssueAccessToken signs a token holding a snapshot of u, bound to the given
// watermark generation.
func (s *TokenService) IssueAccessToken(u domain.User, generation int64) (string, error) {
	claims := jwtx.NewAccessClaims(u.ID, u.Username, u.Email, generation, s.accessTTL(), s.Issuer, s.Audience, s.now())
	return s.Signer.Sign(claims)
}

// IssueRefreshToken creates and stores a new refresh token. sessionID ties
// rotated tokens of one login together; empty starts a new session.
func (s *TokenService) IssueRefreshToken(ctx context.Context, tx store.Tx, userID int64, sessionID string) (string, error) {
	plain, fingerprint, err := cryptox.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	if sessionID == "" {
		sessionID = idx.New().String()
	}

	now := s.now()
	err = tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		TokenHash: fingerprint,
		SessionID: sessionID,
		ExpiresAt: now.Add(s.refreshTTL()),
	})
	if err != nil {
		return "", err
	}
	return plain, nil
}

// IssueTokenPair mints a fresh access and refresh token for u.
func (s *TokenService) IssueTokenPair(ctx context.Context, u domain.User) (domain.TokenPair, error) {
	var pair domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		w, err := tx.Revocations().GetWatermark(ctx, u.ID)
		if err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, tx, u, w.Generation, "")
		return err
	})
	if err != nil {
		return domain.TokenPair{}, mapStoreError("issue tokens", err)
	}
	return pair, nil
}

func (s *TokenService) issuePair(ctx context.Context, tx store.Tx, u domain.User, generation int64, sessionID string) (domain.TokenPair, error) {
	access, err := s.IssueAccessToken(u, generation)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(ctx, tx, u.ID, sessionID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL() / time.Second),
	}, nil
}

// VerifyAccess checks the signature and expiry of token and then the user's
// watermark. The watermark lookup is the only store access.
func (s *TokenService) VerifyAccess(ctx context.Context, token string) (jwtx.Claims, error) {
	claims, err := s.Verifier.Verify(token)
	if err != nil {
		if errors.Is(err, jwtx.ErrExpired) {
			return jwtx.Claims{}, ErrTokenExpired
		}
		return jwtx.Claims{}, ErrTokenInvalid
	}

	w, err := s.Store.Revocations().GetWatermark(ctx, claims.UserID)
	if err != nil {
		return jwtx.Claims{}, mapStoreError("get watermark", err)
	}
	if !w.Accepts(claims.Generation) {
		return jwtx.Claims{}, ErrTokenRevoked
	}

	return claims, nil
}

// Authenticate lets the service back httpx.AuthnMiddleware directly.
func (s *TokenService) Authenticate(ctx context.Context, token string) (jwtx.Claims, error) {
	return s.VerifyAccess(ctx, token)
}

// RevokeUser invalidates every token the user currently holds. The
// watermark bump and refresh token revocation commit together, and any
// VerifyAccess that starts after this returns sees the new watermark.
func (s *TokenService) RevokeUser(ctx context.Context, userID int64) (domain.Watermark, error) {
	var w domain.Watermark
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		w, err = s.revokeTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return domain.Watermark{}, mapStoreError("revoke user", err)
	}

	s.revoked(ctx, userID, w)
	return w, nil
}

func (s *TokenService) revokeTx(ctx context.Context, tx store.Tx, userID int64) (domain.Watermark, error) {
	w, err := tx.Revocations().BumpWatermark(ctx, userID, s.now())
	if err != nil {
		return domain.Watermark{}, err
	}
	return w, tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
}

// revoked runs after the revoking transaction has committed.
func (s *TokenService) revoked(ctx context.Context, userID int64, w domain.Watermark) {
	slogx.FromContext(ctx).Info("user tokens revoked",
		slog.Int64("user_id", userID),
		slog.Int64("generation", w.Generation),
	)

	s.mu.RLock()
	listeners := append([]RevocationListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.UserRevoked(userID, w)
	}
}

// ExchangeRefreshToken rotates a refresh token: the presented one is revoked
// and a new pair in the same session is returned.
func (s *TokenService) ExchangeRefreshToken(ctx context.Context, raw string) (domain.TokenPair, error) {
	if raw == "" {
		return domain.TokenPair{}, ErrTokenInvalid
	}
	l := slogx.FromContext(ctx)
	now := s.now()

	var pair domain.TokenPair
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		hash := cryptox.FingerprintToken(raw)

		rt, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		if err != nil {
			return err
		}

		if rt.Revoked {
			l.Warn("revoked refresh token presented",
				slog.Int64("user_id", rt.UserID),
				slog.String("session_id", rt.SessionID),
			)
			return ErrTokenRevoked
		}
		if !now.Before(rt.ExpiresAt) {
			return ErrTokenExpired
		}

		won, err := tx.RefreshTokens().RevokeRefreshToken(ctx, hash)
		if err != nil {
			return err
		}
		if !won {
			return ErrTokenRevoked
		}

		u, err := tx.Users().GetUserByID(ctx, rt.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenInvalid
		}
		if err != nil {
			return err
		}

		w, err := tx.Revocations().GetWatermark(ctx, u.ID)
		if err != nil {
			return err
		}

		pair, err = s.issuePair(ctx, tx, u, w.Generation, rt.SessionID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return domain.TokenPair{}, err
		}
		return domain.TokenPair{}, mapStoreError("refresh", err)
	}
	return pair, nil
}
