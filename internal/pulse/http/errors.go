package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/pulse/internal/pulse/service"
	"github.com/aussiebroadwan/pulse/pkg/httpx"
	"github.com/aussiebroadwan/pulse/pkg/slogx"
)

const errorCodeInvalidCredentials = "invalid_credentials"

// writeError translates a service error into its API response. Only
// unavailable and unclassified errors are logged at error level, everything
// else is the caller's fault.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		slogx.FromContext(r.Context()).Error("request failed", "status", apiErr.StatusCode, "err", err)
	}
	apiErr.WriteError(w)
}

func toAPIError(err error) *httpx.APIError {
	var apiErr *httpx.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, service.ErrValidation):
		return httpx.ErrInvalidRequest.WithDescription(err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return httpx.NewAPIError(http.StatusUnauthorized, errorCodeInvalidCredentials, "invalid username or password")
	case errors.Is(err, service.ErrTokenExpired):
		return httpx.ErrInvalidToken.WithDescription("token expired")
	case errors.Is(err, service.ErrTokenRevoked):
		return httpx.ErrInvalidToken.WithDescription("token revoked")
	case errors.Is(err, service.ErrUnauthorized):
		return httpx.ErrInvalidToken
	case errors.Is(err, service.ErrForbidden):
		return httpx.ErrForbidden
	case errors.Is(err, service.ErrConflict):
		return httpx.NewAPIError(http.StatusConflict, httpx.ErrorCodeConflict, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, service.ErrRateLimited):
		return httpx.ErrRateLimited
	case errors.Is(err, service.ErrUnavailable):
		return httpx.ErrUnavailable
	}
	return httpx.ErrServerError
}
