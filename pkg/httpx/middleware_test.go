package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/pulse/pkg/httpx"
	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator struct {
	token  string
	claims jwtx.Claims
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (jwtx.Claims, error) {
	if token != s.token {
		return jwtx.Claims{}, errors.New("bad token")
	}
	return s.claims, nil
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mw("a"), mw("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestRecover(t *testing.T) {
	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), httpx.Recover())

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAuthnAndOwnership(t *testing.T) {
	auth := stubAuthenticator{
		token:  "good",
		claims: jwtx.NewAccessClaims(7, "alice", "alice@example.com", 0, time.Minute, "", nil, time.Now()),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /profile/{userId}", httpx.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, int64(7), httpx.UserIDFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}),
		httpx.AuthnMiddleware(auth, nil),
		httpx.RequireOwner("userId"),
	))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"owner", "/profile/7", "Bearer good", http.StatusOK},
		{"lowercase scheme", "/profile/7", "bearer good", http.StatusOK},
		{"other user", "/profile/8", "Bearer good", http.StatusForbidden},
		{"bad id", "/profile/abc", "Bearer good", http.StatusBadRequest},
		{"missing header", "/profile/7", "", http.StatusUnauthorized},
		{"wrong scheme", "/profile/7", "Basic good", http.StatusUnauthorized},
		{"bad token", "/profile/7", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)
			require.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusUnauthorized {
				require.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAuthnCustomErrorWriter(t *testing.T) {
	h := httpx.Chain(http.NotFoundHandler(), httpx.AuthnMiddleware(stubAuthenticator{token: "x"},
		func(w http.ResponseWriter, _ *http.Request, _ error) {
			httpx.ErrUnavailable.WriteError(w)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer y")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "5", rr.Header().Get("Retry-After"))
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, httpx.DecodeJSON(httptest.NewRecorder(), req, &dst))
	require.Equal(t, "x", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	err := httpx.DecodeJSON(httptest.NewRecorder(), req, &dst)
	var apiErr *httpx.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	require.Error(t, httpx.DecodeJSON(httptest.NewRecorder(), req, &dst))
}
