package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/internal/pulse/store"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
)

// Notifier pushes an event to every live connection of a user. Delivery is
// best effort and must never block.
type Notifier interface {
	Send(userID int64, event domain.Event)
}

type nopNotifier struct{}

func (nopNotifier) Send(int64, domain.Event) {}

// Profile fields that may be changed through UpdateProfile.
const (
	FieldUsername  = "username"
	FieldEmail     = "email"
	FieldAvatarRef = "avatarRef"
)

var mutableProfileFields = []string{FieldUsername, FieldEmail, FieldAvatarRef}

// UserService owns every mutation of a user record. Nothing else writes to
// the users table.
type UserService struct {
	Store    store.Store
	Notifier Notifier
}

func NewUserService(s store.Store, n Notifier) *UserService {
	if n == nil {
		n = nopNotifier{}
	}
	return &UserService{Store: s, Notifier: n}
}

// CreateUser stores a new user on the free plan. Uniqueness is decided by
// the store's constraints.
func (s *UserService) CreateUser(ctx context.Context, username, email, passwordHash string) (domain.User, error) {
	u, err := s.Store.Users().CreateUser(ctx, username, email, passwordHash)
	if err != nil {
		return domain.User{}, mapStoreError("create user", err)
	}
	return u, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, id)
	return u, mapStoreError("get user", err)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	return u, mapStoreError("get user", err)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, email)
	return u, mapStoreError("get user", err)
}

// UpdateProfile applies client supplied fields. Any key outside the mutable
// set rejects the whole update, nothing is partially applied.
func (s *UserService) UpdateProfile(ctx context.Context, id int64, fields map[string]any) (domain.User, error) {
	patch, err := ParseProfilePatch(fields)
	if err != nil {
		return domain.User{}, err
	}

	u, err := s.Store.Users().UpdateProfile(ctx, id, patch)
	if err != nil {
		return domain.User{}, mapStoreError("update profile", err)
	}

	slogx.FromContext(ctx).Info("profile updated", slog.Int64("user_id", id))
	s.Notifier.Send(id, domain.NewEvent(id, domain.EventProfileUpdated, u.Public()))
	return u, nil
}

// UpdateSubscription validates typ before touching the store.
func (s *UserService) UpdateSubscription(ctx context.Context, id int64, typ string) (domain.User, error) {
	sub, err := domain.ParseSubscriptionType(typ)
	if err != nil {
		return domain.User{}, validationError(err)
	}

	u, err := s.Store.Users().UpdateSubscription(ctx, id, sub)
	if err != nil {
		return domain.User{}, mapStoreError("update subscription", err)
	}

	slogx.FromContext(ctx).Info("subscription updated",
		slog.Int64("user_id", id),
		slog.String("subscription_type", string(sub)),
	)
	s.Notifier.Send(id, domain.NewEvent(id, domain.EventSubscriptionUpdated, map[string]any{
		"subscriptionType": sub,
	}))
	return u, nil
}

// SetAvatar points the user at a stored blob, or clears it when ref is nil.
func (s *UserService) SetAvatar(ctx context.Context, id int64, ref *string) (domain.User, error) {
	u, err := s.Store.Users().SetAvatar(ctx, id, ref)
	if err != nil {
		return domain.User{}, mapStoreError("set avatar", err)
	}

	s.Notifier.Send(id, domain.NewEvent(id, domain.EventAvatarUpdated, map[string]any{
		"avatarRef": u.AvatarRef,
	}))
	return u, nil
}

// ParseProfilePatch turns a decoded JSON object into a validated patch.
func ParseProfilePatch(fields map[string]any) (domain.ProfilePatch, error) {
	if len(fields) == 0 {
		return domain.ProfilePatch{}, validationf("no fields to update")
	}

	var rejected []string
	for k := range fields {
		if !slices.Contains(mutableProfileFields, k) {
			rejected = append(rejected, k)
		}
	}
	if len(rejected) > 0 {
		slices.Sort(rejected)
		return domain.ProfilePatch{}, validationf("fields cannot be updated: %s", strings.Join(rejected, ", "))
	}

	var patch domain.ProfilePatch

	if v, ok := fields[FieldUsername]; ok {
		username, ok := v.(string)
		if !ok {
			return domain.ProfilePatch{}, validationf("%s must be a string", FieldUsername)
		}
		if err := domain.ValidateUsername(username); err != nil {
			return domain.ProfilePatch{}, validationError(err)
		}
		patch.Username = &username
	}

	if v, ok := fields[FieldEmail]; ok {
		raw, ok := v.(string)
		if !ok {
			return domain.ProfilePatch{}, validationf("%s must be a string", FieldEmail)
		}
		email, err := domain.NormalizeEmail(raw)
		if err != nil {
			return domain.ProfilePatch{}, validationError(err)
		}
		patch.Email = &email
	}

	if v, ok := fields[FieldAvatarRef]; ok {
		patch.SetAvatar = true
		switch ref := v.(type) {
		case nil:
		case string:
			ref = strings.TrimSpace(ref)
			if ref == "" || len(ref) > 512 {
				return domain.ProfilePatch{}, validationf("%s must be 1-512 characters or null", FieldAvatarRef)
			}
			patch.AvatarRef = &ref
		default:
			return domain.ProfilePatch{}, validationf("%s must be a string or null", FieldAvatarRef)
		}
	}

	return patch, nil
}
