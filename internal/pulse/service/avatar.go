package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/pulse/internal/pulse/blob"
	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
	"github.com/google/uuid"
)

// DefaultAvatarMaxBytes caps uploads when AvatarService.MaxBytes is unset.
const DefaultAvatarMaxBytes = 2 << 20

// Content types accepted as avatars, sniffed from the bytes rather than
// trusted from the client.
var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// AvatarService stores avatar images and points the user's avatarRef at
// them. The reference is the blob key; URL resolves it for clients.
type AvatarService struct {
	Blobs    blob.Store
	Users    *UserService
	MaxBytes int64
}

// Limit is the largest accepted upload in bytes.
func (s *AvatarService) Limit() int64 {
	if s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return DefaultAvatarMaxBytes
}

// URL returns the public location of an avatar reference.
func (s *AvatarService) URL(ref string) string {
	return s.Blobs.URL(ref)
}

// Upload validates r as an image, stores it and replaces the user's avatar.
// The previous object is removed best effort once the new reference is
// committed.
func (s *AvatarService) Upload(ctx context.Context, userID int64, r io.Reader) (domain.User, error) {
	l := slogx.FromContext(ctx)
	limit := s.Limit()

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return domain.User{}, validationf("read avatar: %v", err)
	}
	if len(data) == 0 {
		return domain.User{}, validationf("avatar is empty")
	}
	if int64(len(data)) > limit {
		return domain.User{}, validationf("avatar exceeds %d bytes", limit)
	}

	contentType := http.DetectContentType(data)
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return domain.User{}, validationf("unsupported avatar type %q", contentType)
	}

	prev, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	key := path.Join("avatars", strconv.FormatInt(userID, 10), uuid.NewString()+ext)
	if err := s.Blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.User{}, fmt.Errorf("%w: store avatar: %w", ErrUnavailable, err)
	}

	u, err := s.Users.SetAvatar(ctx, userID, &key)
	if err != nil {
		if derr := s.Blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			l.Warn("orphaned avatar object", slog.String("key", key), slog.Any("error", derr))
		}
		return domain.User{}, err
	}

	if prev.AvatarRef != nil && *prev.AvatarRef != key && s.owns(userID, *prev.AvatarRef) {
		if err := s.Blobs.Delete(ctx, *prev.AvatarRef); err != nil {
			l.Warn("failed to delete previous avatar", slog.String("key", *prev.AvatarRef), slog.Any("error", err))
		}
	}

	l.Info("avatar updated",
		slog.Int64("user_id", userID),
		slog.String("content_type", contentType),
		slog.Int("bytes", len(data)),
	)
	return u, nil
}

// owns reports whether ref lives under the user's own prefix. References set
// by hand through UpdateProfile may point anywhere and are never deleted.
func (s *AvatarService) owns(userID int64, ref string) bool {
	return strings.HasPrefix(ref, "avatars/"+strconv.FormatInt(userID, 10)+"/")
}
