package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/backoffice/internal/auth/service"
	"github.com/aussiebroadwan/backoffice/internal/revocation"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/slogx"
)

// writeServiceError maps a TokenService error onto its wire error. Anything
// unrecognised is logged and reported as a ServerError.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var out *authsdk.Error
	switch {
	case errors.Is(err, service.ErrAuthenticationFailed):
		out = authsdk.ErrAuthenticationFailed
	case errors.Is(err, service.ErrInvalidRefresh):
		out = authsdk.ErrInvalidRefreshToken
	case errors.Is(err, service.ErrUsernameExtraction):
		out = authsdk.ErrUsernameExtractionFailed
	case errors.Is(err, service.ErrUserNotFound):
		out = authsdk.ErrUserNotFound
	case errors.Is(err, service.ErrInvalidToken):
		out = authsdk.ErrInvalidToken
	case errors.Is(err, revocation.ErrUnavailable):
		slogx.FromContext(r.Context()).Warn("revocation cache unavailable", slog.Any("error", err))
		out = authsdk.ErrRevocationUnavailable
	default:
		slogx.FromContext(r.Context()).Error("request failed", slog.Any("error", err))
		out = authsdk.ErrServerError
	}
	out.WriteError(w)
}
