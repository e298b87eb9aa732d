package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
)

// Authenticator turns a raw bearer token into verified claims. Revocation
// checks belong here, not in the signature verifier.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (jwtx.Claims, error)
}

// ErrorWriter renders an error returned by an Authenticator.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// AuthnMiddleware rejects requests without a valid bearer token and stores the
// claims in the context. onErr may be nil, in which case every failure is a
// plain 401.
func AuthnMiddleware(a Authenticator, onErr ErrorWriter) Middleware {
	if onErr == nil {
		onErr = func(w http.ResponseWriter, _ *http.Request, _ error) {
			ErrInvalidToken.WriteError(w)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				ErrInvalidToken.WithDescription("missing bearer token").WriteError(w)
				return
			}

			claims, err := a.Authenticate(ctx, raw)
			if err != nil {
				slogx.FromContext(ctx).Warn("bearer authentication failed", "err", err)
				onErr(w, r, err)
				return
			}

			ctx = slogx.With(ContextWithClaims(ctx, claims), "user_id", claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOwner only lets a request through when the path value named param
// equals the authenticated user's id. It must run after AuthnMiddleware.
func RequireOwner(param string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target, err := strconv.ParseInt(r.PathValue(param), 10, 64)
			if err != nil || target <= 0 {
				ErrInvalidRequest.WithDescription("invalid " + param).WriteError(w)
				return
			}

			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				ErrInvalidToken.WriteError(w)
				return
			}

			if claims.UserID != target {
				slogx.FromContext(r.Context()).Warn("cross-user access rejected",
					"target_id", target,
					"path", r.URL.Path,
				)
				ErrForbidden.WithDescription("token does not belong to this user").WriteError(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
