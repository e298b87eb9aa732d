package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/pkg/httpx"
)

// avatarFormField is the multipart field carrying the image.
const avatarFormField = "avatar"

// multipartOverhead is allowed on top of the avatar size for headers and
// boundaries.
const multipartOverhead = 64 << 10

// ProfileHandler serves the routes that read or change a user record. All
// of them run behind RequireOwner, so the path id is the caller's own.
type ProfileHandler struct {
	UserService   *service.UserService
	AvatarService *service.AvatarService
}

// HandleMe
//
//	@Summary	Current user
//	@Tags		Profile
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	domain.PublicUser
//	@Failure	401	{object}	ErrorResponse
//	@Router		/me [get].
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.UserService.GetByID(r.Context(), httpx.UserIDFromContext(r.Context()))
	if errors.Is(err, service.ErrNotFound) {
		// Token outlived its user.
		httpx.ErrInvalidToken.WriteError(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.Public())
}

// HandleGet
//
//	@Summary	Get profile
//	@Tags		Profile
//	@Security	BearerAuth
//	@Produce	json
//	@Param		userId	path		int	true	"user id"
//	@Success	200		{object}	domain.PublicUser
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/profile/{userId} [get].
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.UserService.GetByID(r.Context(), httpx.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.Public())
}

// HandlePatch applies a partial profile update. Only username, email and
// avatarRef may be sent; any other key rejects the whole request.
//
//	@Summary	Update profile
//	@Tags		Profile
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		userId	path		int				true	"user id"
//	@Param		body	body		map[string]any	true	"any of username, email, avatarRef"
//	@Success	200		{object}	domain.PublicUser
//	@Failure	400		{object}	ErrorResponse	"disallowed or invalid field"
//	@Failure	403		{object}	ErrorResponse
//	@Failure	409		{object}	ErrorResponse
//	@Router		/profile/{userId} [patch].
func (h *ProfileHandler) HandlePatch(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := httpx.DecodeJSON(w, r, &fields); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.UserService.UpdateProfile(r.Context(), httpx.UserIDFromContext(r.Context()), fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.Public())
}

// HandleSubscription
//
//	@Summary	Change subscription
//	@Tags		Profile
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		userId	path		int					true	"user id"
//	@Param		body	body		SubscriptionRequest	true	"free, premium or enterprise"
//	@Success	200		{object}	domain.PublicUser
//	@Failure	400		{object}	ErrorResponse
//	@Failure	403		{object}	ErrorResponse
//	@Router		/subscription/{userId} [patch].
func (h *ProfileHandler) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.UserService.UpdateSubscription(r.Context(), httpx.UserIDFromContext(r.Context()), req.SubscriptionType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.Public())
}

// HandleAvatar
//
//	@Summary		Upload avatar
//	@Description	PNG, JPEG, WebP or GIF, detected from the content.
//	@Tags			Profile
//	@Security		BearerAuth
//	@Accept			mpfd
//	@Produce		json
//	@Param			userId	path		int		true	"user id"
//	@Param			avatar	formData	file	true	"image"
//	@Success		200		{object}	AvatarResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		403		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Router			/avatar/{userId} [post].
func (h *ProfileHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	if h.AvatarService == nil {
		httpx.ErrNotFound.WithDescription("avatar uploads are disabled").WriteError(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.AvatarService.Limit()+multipartOverhead)
	file, _, err := r.FormFile(avatarFormField)
	if tooBig := new(http.MaxBytesError); errors.As(err, &tooBig) {
		httpx.NewAPIError(http.StatusRequestEntityTooLarge, httpx.ErrorCodeInvalidRequest,
			fmt.Sprintf("avatar must be at most %d bytes", h.AvatarService.Limit())).WriteError(w)
		return
	}
	if err != nil {
		httpx.ErrInvalidRequest.WithDescription("multipart field '" + avatarFormField + "' is required").WriteError(w)
		return
	}
	defer file.Close()

	u, err := h.AvatarService.Upload(r.Context(), httpx.UserIDFromContext(r.Context()), file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ref := *u.AvatarRef
	httpx.WriteJSON(w, http.StatusOK, AvatarResponse{
		AvatarRef: ref,
		AvatarURL: h.AvatarService.URL(ref),
		User:      u.Public(),
	})
}
