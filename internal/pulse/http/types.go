package http

import (
	"time"

	"github.com/aussiebroadwan/pulse/internal/pulse/domain"
	"github.com/aussiebroadwan/pulse/pkg/httpx"
)

type RegisterRequest struct {
	Username string `json:"username" example:"alice"`
	Email    string `json:"email" example:"alice@example.com"`
	Password string `json:"password" example:"correct horse"`
}

// LoginRequest accepts a username or an email in Username.
type LoginRequest struct {
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"correct horse"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type PasswordChangeRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type SubscriptionRequest struct {
	SubscriptionType string `json:"subscriptionType" example:"premium"`
}

type LoginResponse struct {
	domain.TokenPair
	User domain.PublicUser `json:"user"`
}

type VerifyResponse struct {
	Valid     bool      `json:"valid"`
	UserID    int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AvatarResponse struct {
	AvatarRef string            `json:"avatarRef"`
	AvatarURL string            `json:"avatarUrl"`
	User      domain.PublicUser `json:"user"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Realtime string `json:"realtime,omitempty"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// ErrorResponse documents httpx.APIError for swagger.
type ErrorResponse = httpx.APIError
