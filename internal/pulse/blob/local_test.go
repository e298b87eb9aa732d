package blob_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aussiebroadwan/pulse/internal/pulse/blob"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	t.Parallel()

	for _, k := range []string{"avatars/1/a.png", "a"} {
		got, err := blob.CleanKey(k)
		require.NoError(t, err, k)
		require.Equal(t, k, got)
	}
	for _, k := range []string{"", "/etc/passwd", "../x", "a/../../x", "a//b", "a\\b", ".", "a/./b"} {
		_, err := blob.CleanKey(k)
		require.ErrorIs(t, err, blob.ErrInvalidKey, k)
	}
}

func TestLocalStore_PutDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	s, err := blob.NewLocalStore(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	data := []byte("not really a png")
	require.NoError(t, s.Put(ctx, "avatars/7/x.png", bytes.NewReader(data), int64(len(data)), "image/png"))

	got, err := os.ReadFile(filepath.Join(dir, "avatars", "7", "x.png"))
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, "http://localhost:8080/media/avatars/7/x.png", s.URL("avatars/7/x.png"))

	// overwrite
	require.NoError(t, s.Put(ctx, "avatars/7/x.png", strings.NewReader("v2"), 2, "image/png"))
	got, err = os.ReadFile(filepath.Join(dir, "avatars", "7", "x.png"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(got))

	require.NoError(t, s.Delete(ctx, "avatars/7/x.png"))
	_, err = os.Stat(filepath.Join(dir, "avatars", "7", "x.png"))
	require.True(t, os.IsNotExist(err))

	// deleting twice is fine
	require.NoError(t, s.Delete(ctx, "avatars/7/x.png"))
}

func TestLocalStore_ShortBodyLeavesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	s, err := blob.NewLocalStore(dir, "/media")
	require.NoError(t, err)

	err = s.Put(ctx, "avatars/1/a.png", strings.NewReader("abc"), 10, "image/png")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "avatars", "1"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLocalStore_RejectsTraversal(t *testing.T) {
	t.Parallel()

	s, err := blob.NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	err = s.Put(context.Background(), "../escape", strings.NewReader("x"), 1, "text/plain")
	require.ErrorIs(t, err, blob.ErrInvalidKey)
}

func TestLocalStore_HandlerHidesDirectories(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := blob.NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)
	body := []byte("png bytes")
	require.NoError(t, s.Put(ctx, "avatars/1/a.png", bytes.NewReader(body), int64(len(body)), "image/png"))

	h := s.Handler()
	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/avatars/1/a.png")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, body, rec.Body.Bytes())

	for _, dir := range []string{"/", "/avatars/", "/avatars/1/", "/avatars"} {
		rec := get(dir)
		require.Equal(t, http.StatusNotFound, rec.Code, dir)
		require.NotContains(t, rec.Body.String(), "a.png", dir)
	}
}
