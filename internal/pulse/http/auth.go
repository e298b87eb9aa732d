package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/pulse/internal/pulse/metrics"
	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/pkg/httpx"
)

type AuthHandler struct {
	AuthService *service.AuthService
	Metrics     *metrics.Metrics
}

// HandleRegister creates an account.
//
//	@Summary		Register a user
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterRequest		true	"new account"
//	@Success		201		{object}	domain.PublicUser
//	@Failure		400		{object}	ErrorResponse	"invalid input"
//	@Failure		409		{object}	ErrorResponse	"username or email already taken"
//	@Failure		429		{object}	ErrorResponse
//	@Router			/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.AuthService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u.Public())
}

// HandleLogin exchanges credentials for a token pair.
//
//	@Summary		Log in
//	@Description	username may also be an email address. Wrong passwords and unknown users get the same 401.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest	true	"credentials"
//	@Success		200		{object}	LoginResponse
//	@Failure		401		{object}	ErrorResponse	"invalid credentials"
//	@Failure		429		{object}	ErrorResponse
//	@Router			/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pair, u, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if h.Metrics != nil && errors.Is(err, service.ErrInvalidCredentials) {
			h.Metrics.Login(metrics.LoginFailed)
		}
		writeError(w, r, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.Login(metrics.LoginSucceeded)
	}

	httpx.WriteJSON(w, http.StatusOK, LoginResponse{TokenPair: pair, User: u.Public()})
}

// HandleRefresh rotates a refresh token.
//
//	@Summary		Refresh tokens
//	@Description	The presented refresh token is spent; reuse returns 401.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshRequest	true	"refresh token"
//	@Success		200		{object}	domain.TokenPair
//	@Failure		401		{object}	ErrorResponse
//	@Router			/token/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pair)
}

// HandleVerify reports the claims of the bearer token. Authentication has
// already happened in the middleware.
//
//	@Summary	Verify access token
//	@Tags		Auth
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	VerifyResponse
//	@Failure	401	{object}	ErrorResponse
//	@Router		/verify-token [get].
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.ErrInvalidToken.WriteError(w)
		return
	}

	resp := VerifyResponse{
		Valid:    true,
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandlePasswordChange
//
//	@Summary		Change password
//	@Description	Every token issued before the change stops working, including this one.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PasswordChangeRequest	true	"old and new password"
//	@Success		200		{object}	StatusResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/password/change [post].
func (h *AuthHandler) HandlePasswordChange(w http.ResponseWriter, r *http.Request) {
	var req PasswordChangeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	userID := httpx.UserIDFromContext(r.Context())
	if err := h.AuthService.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, StatusResponse{Status: "password changed"})
}

// HandleLogout
//
//	@Summary		Log out everywhere
//	@Description	Revokes every token of the user, including the one presenting the request.
//	@Description	Revocation itself is idempotent, but a repeated call with the same, now revoked, token is answered with 401.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Param			userId	path		int	true	"user id"
//	@Success		200		{object}	StatusResponse
//	@Failure		401		{object}	ErrorResponse	"token missing, expired or already revoked"
//	@Failure		403		{object}	ErrorResponse	"token belongs to another user"
//	@Router			/logout/{userId} [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.Logout(r.Context(), httpx.UserIDFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, StatusResponse{Status: "logged out"})
}
