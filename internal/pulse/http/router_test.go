package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/blob"
	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	pulsehttp "github.com/aussiebroadwan/pulse/internal/pulse/http"
	"github.com/aussiebroadwan/pulse/internal/pulse/metrics"
	"github.com/aussiebroadwan/pulse/internal/pulse/notify"
	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/internal/pulse/store/drivers/sqlite"
	"github.com/aussiebroadwan/pulse/pkg/jwtx"
	"github.com/aussiebroadwan/pulse/pkg/ratelimit"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testServer struct {
	*httptest.Server
	hub *notify.Hub
	st  *sqlite.Store
}

func newTestServer(t *testing.T, authLimit int) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	_, err = st.ApplyMigrations(context.Background())
	require.NoError(t, err)

	signer, err := jwtx.NewSignerHS256(testSecret)
	require.NoError(t, err)
	verifier, err := jwtx.NewVerifierHS256(testSecret, jwtx.VerifyOptions{Issuer: "pulse-test"})
	require.NoError(t, err)

	logger := slogx.Discard()
	m := metrics.New()

	tokens := &service.TokenService{
		Store:      st,
		Signer:     signer,
		Verifier:   verifier,
		Issuer:     "pulse-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	}
	auth := &service.AuthService{Tokens: tokens, HashCost: bcrypt.MinCost}
	hub := notify.NewHub(auth, logger, m, notify.Config{})
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })
	tokens.OnRevoke(hub)

	users := service.NewUserService(st, hub)
	auth.Users = users

	dir := t.TempDir()
	blobs, err := blob.NewLocalStore(dir, "/media")
	require.NoError(t, err)

	r := pulsehttp.NewRouter(st, logger, "test")
	r.AuthService = auth
	r.UserService = users
	r.AvatarService = &service.AvatarService{Blobs: blobs, Users: users, MaxBytes: 4096}
	r.Hub = hub
	r.Metrics = m
	r.Media = blobs.Handler()
	r.Limiter = ratelimit.New([]ratelimit.Bucket{
		{Name: ratelimit.BucketGeneral, Limit: 1000, Window: time.Minute},
		{Name: ratelimit.BucketAuth, Limit: authLimit, Window: time.Minute},
	})
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, st: st}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

type session struct {
	id      int64
	access  string
	refresh string
}

func (s *testServer) signup(t *testing.T, username string) session {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	require.NotContains(t, body, "passwordHash")
	require.NotContains(t, body, "PasswordHash")

	return s.login(t, username, "correct horse")
}

func (s *testServer) login(t *testing.T, username, password string) session {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	user := body["user"].(map[string]any)
	return session{
		id:      int64(user["id"].(float64)),
		access:  body["accessToken"].(string),
		refresh: body["refreshToken"].(string),
	}
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)

	alice := s.signup(t, "alice")
	require.NotZero(t, alice.id)

	resp, body := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "conflict", body["error"])

	resp, body = s.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": "x", "email": "x@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", body["error"])

	wrong, wrongBody := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "nope nope"})
	unknown, unknownBody := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "ghost", "password": "nope nope"})
	require.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	require.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	require.Equal(t, wrongBody, unknownBody)

	resp, body = s.do(t, http.MethodGet, "/me", alice.access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", body["username"])
	require.Equal(t, "free", body["subscriptionType"])

	resp, body = s.do(t, http.MethodGet, "/verify-token", alice.access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["valid"])

	resp, _ = s.do(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
}

func TestCrossUserAccessIsForbidden(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)

	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")

	bobPath := func(prefix string) string { return fmt.Sprintf("%s/%d", prefix, bob.id) }

	tests := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, bobPath("/profile"), nil},
		{http.MethodPatch, bobPath("/profile"), map[string]any{"username": "pwned"}},
		{http.MethodPatch, bobPath("/subscription"), map[string]any{"subscriptionType": "premium"}},
		{http.MethodPost, bobPath("/avatar"), nil},
		{http.MethodPost, bobPath("/logout"), nil},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp, body := s.do(t, tc.method, tc.path, alice.access, tc.body)
			require.Equal(t, http.StatusForbidden, resp.StatusCode)
			require.Equal(t, "forbidden", body["error"])
		})
	}

	resp, body := s.do(t, http.MethodGet, bobPath("/profile"), bob.access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "bob", body["username"])

	resp, _ = s.do(t, http.MethodGet, "/profile/not-a-number", bob.access, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProfileAndSubscription(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)
	alice := s.signup(t, "alice")
	path := fmt.Sprintf("/profile/%d", alice.id)

	_, before := s.do(t, http.MethodGet, path, alice.access, nil)

	resp, body := s.do(t, http.MethodPatch, path, alice.access, map[string]any{"id": 99999, "createdAt": "2020-01-01"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body["error_description"], "createdAt, id")

	_, after := s.do(t, http.MethodGet, path, alice.access, nil)
	require.Equal(t, before["id"], after["id"])
	require.Equal(t, before["createdAt"], after["createdAt"])

	resp, body = s.do(t, http.MethodPatch, path, alice.access, map[string]any{"email": "New@Example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "new@example.com", body["email"])

	subPath := fmt.Sprintf("/subscription/%d", alice.id)
	resp, _ = s.do(t, http.MethodPatch, subPath, alice.access, map[string]any{"subscriptionType": "platinum"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = s.do(t, http.MethodPatch, subPath, alice.access, map[string]any{"subscriptionType": "enterprise"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "enterprise", body["subscriptionType"])
}

func TestLogoutAndPasswordChangeRevoke(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)
	alice := s.signup(t, "alice")

	resp, _ := s.do(t, http.MethodPost, fmt.Sprintf("/logout/%d", alice.id), alice.access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodGet, "/me", alice.access, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "token revoked", body["error_description"])

	resp, _ = s.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refreshToken": alice.refresh})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	again := s.login(t, "alice", "correct horse")
	resp, _ = s.do(t, http.MethodPost, "/password/change", again.access, map[string]string{
		"oldPassword": "wrong password", "newPassword": "battery staple",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/password/change", again.access, map[string]string{
		"oldPassword": "correct horse", "newPassword": "battery staple",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/me", again.access, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	s.login(t, "alice", "battery staple")
}

func TestRefreshRotation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)
	alice := s.signup(t, "alice")

	resp, body := s.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refreshToken": alice.refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEqual(t, alice.refresh, body["refreshToken"])

	resp, _ = s.do(t, http.MethodGet, "/me", body["accessToken"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/token/refresh", "", map[string]string{"refreshToken": alice.refresh})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAvatarUpload(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)
	alice := s.signup(t, "alice")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

	upload := func(field string, data []byte) (*http.Response, map[string]any) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile(field, "a.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/avatar/%d", s.URL, alice.id), &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+alice.access)
		return s.send(t, req)
	}

	resp, body := upload("avatar", png)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	url := body["avatarUrl"].(string)
	require.True(t, strings.HasPrefix(url, "/media/avatars/"))

	media, err := http.Get(s.URL + url)
	require.NoError(t, err)
	got, err := io.ReadAll(media.Body)
	media.Body.Close()
	require.NoError(t, err)
	require.Equal(t, png, got)

	resp, _ = upload("avatar", []byte("plain text is not an image"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = upload("file", png)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = upload("avatar", bytes.Repeat([]byte{0}, 96<<10))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	require.Equal(t, "avatar must be at most 4096 bytes", body["error_description"])

	// The key layout is not browsable.
	for _, dir := range []string{"/media/", "/media/avatars/", fmt.Sprintf("/media/avatars/%d/", alice.id)} {
		listing, err := http.Get(s.URL + dir)
		require.NoError(t, err)
		listing.Body.Close()
		require.Equal(t, http.StatusNotFound, listing.StatusCode, dir)
	}
}

func TestAuthRateLimit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 3)

	creds := map[string]string{"username": "ghost", "password": "whatever1"}
	for range 3 {
		resp, _ := s.do(t, http.MethodPost, "/login", "", creds)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, body := s.do(t, http.MethodPost, "/login", "", creds)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limited", body["error"])
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	// the general bucket is separate
	resp, _ = s.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSystemEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)

	resp, body := s.do(t, http.MethodGet, "/init-table", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "already-exists", body["status"])

	resp, body = s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	resp, _ = s.do(t, http.MethodGet, "/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A failing store reports degraded without leaking the driver error.
	require.NoError(t, s.st.Close())
	resp, body = s.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]any)
	require.Equal(t, "error", checks["database"])
}

func TestLogoutTwiceWithSameToken(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, 100)
	alice := s.signup(t, "alice")

	path := fmt.Sprintf("/logout/%d", alice.id)
	resp, _ := s.do(t, http.MethodPost, path, alice.access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The revoked token can no longer authenticate the repeat.
	resp, body := s.do(t, http.MethodPost, path, alice.access, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "token revoked", body["error_description"])

	// A fresh session can log out again.
	again := s.login(t, "alice", "correct horse")
	resp, _ = s.do(t, http.MethodPost, path, again.access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRealtimeOverRouter(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := newTestServer(t, 100)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")

	wsBase := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?access_token="
	a1, _, err := websocket.Dial(ctx, wsBase+alice.access, nil)
	require.NoError(t, err)
	defer a1.CloseNow()
	a2, _, err := websocket.Dial(ctx, wsBase+alice.access, nil)
	require.NoError(t, err)
	defer a2.CloseNow()
	b1, _, err := websocket.Dial(ctx, wsBase+bob.access, nil)
	require.NoError(t, err)
	defer b1.CloseNow()

	require.Eventually(t, func() bool { return s.hub.Connections(alice.id) == 2 }, 2*time.Second, 10*time.Millisecond)

	resp, _ := s.do(t, http.MethodPatch, fmt.Sprintf("/subscription/%d", alice.id), alice.access, map[string]any{"subscriptionType": "premium"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for _, c := range []*websocket.Conn{a1, a2} {
		var e domain.Event
		require.NoError(t, wsjson.Read(ctx, c, &e))
		require.Equal(t, domain.EventSubscriptionUpdated, e.Type)
		require.Equal(t, alice.id, e.UserID)
	}

	// bob got nothing: the next thing he sees is his own revocation
	resp, _ = s.do(t, http.MethodPost, fmt.Sprintf("/logout/%d", bob.id), bob.access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var e domain.Event
	require.NoError(t, wsjson.Read(ctx, b1, &e))
	require.Equal(t, domain.EventSessionRevoked, e.Type)

	_, _, err = b1.Read(ctx)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	// a revoked token cannot open a new connection
	stale, _, err := websocket.Dial(ctx, wsBase+bob.access, nil)
	require.NoError(t, err)
	defer stale.CloseNow()
	_, _, err = stale.Read(ctx)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}
