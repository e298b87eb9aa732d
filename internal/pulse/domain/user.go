package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// SubscriptionType is the closed set of plans a user can be on.
type SubscriptionType string

const (
	SubscriptionFree       SubscriptionType = "free"
	SubscriptionPremium    SubscriptionType = "premium"
	SubscriptionEnterprise SubscriptionType = "enterprise"
)

// SubscriptionTypes lists every valid plan, cheapest first.
var SubscriptionTypes = []SubscriptionType{SubscriptionFree, SubscriptionPremium, SubscriptionEnterprise}

var (
	ErrInvalidSubscription = errors.New("subscriptionType must be one of free, premium, enterprise")
	ErrInvalidUsername     = errors.New("username must be 3-32 characters of letters, digits, '.', '_' or '-'")
	ErrInvalidEmail        = errors.New("email is not a valid address")
)

// Valid reports whether s is one of the known plans.
func (s SubscriptionType) Valid() bool {
	switch s {
	case SubscriptionFree, SubscriptionPremium, SubscriptionEnterprise:
		return true
	}
	return false
}

// ParseSubscriptionType is strict: no trimming, no case folding.
func ParseSubscriptionType(s string) (SubscriptionType, error) {
	t := SubscriptionType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSubscription, s)
	}
	return t, nil
}

// User is the stored user record. PasswordHash must never leave the
// process, use Public for anything that crosses the API boundary.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string // bcrypt
	Subscription SubscriptionType
	AvatarRef    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the outward representation of a User.
type PublicUser struct {
	ID               int64            `json:"id"`
	Username         string           `json:"username"`
	Email            string           `json:"email"`
	SubscriptionType SubscriptionType `json:"subscriptionType"`
	AvatarRef        *string          `json:"avatarRef"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		SubscriptionType: u.Subscription,
		AvatarRef:        u.AvatarRef,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// ProfilePatch is a validated partial update of the mutable profile fields.
// A nil pointer leaves the field untouched. AvatarRef is only applied when
// SetAvatar is true, so it can also be cleared.
type ProfilePatch struct {
	Username  *string
	Email     *string
	SetAvatar bool
	AvatarRef *string
}

func (p ProfilePatch) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && !p.SetAvatar
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// ValidateUsername checks the username shape. Usernames are case sensitive.
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// NormalizeEmail trims, lowercases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}
