package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/backoffice/internal/directory/service"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var out *authsdk.Error
	switch {
	case errors.Is(err, service.ErrNotFound):
		out = authsdk.ErrUserNotFound
	case errors.Is(err, service.ErrUsernameTaken):
		out = authsdk.ErrUsernameTaken
	case errors.Is(err, service.ErrAlreadyInState):
		out = authsdk.ErrUserStateConflict
	case errors.Is(err, service.ErrInvalidInput):
		// The validation message names the offending field, nothing internal.
		out = &authsdk.Error{Status: http.StatusBadRequest, Kind: authsdk.KindInvalidRequest, Message: err.Error()}
	case errors.Is(err, service.ErrSynchronizationDispatchFailed):
		out = authsdk.ErrSynchronizationDispatchFailed
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		out = authsdk.ErrServerError
	}
	out.WriteError(w)
}

// writeAuthError renders rejections from the authn and role middleware.
func writeAuthError(w http.ResponseWriter, status int) {
	if status == http.StatusForbidden {
		authsdk.ErrInsufficientRoles.WriteError(w)
		return
	}
	authsdk.ErrInvalidToken.WriteError(w)
}
