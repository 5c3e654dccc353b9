package http

import (
	"net/http"

	"github.com/aussiebroadwan/backoffice/internal/auth/service"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/httpx"
)

// LogoutHandler serves POST /auth/logout. Unknown and already revoked tokens
// still answer 204.
type LogoutHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Logout
//	@Description	Revokes the presented access token immediately. Expired but correctly signed tokens are accepted.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Success		204	"Token revoked (or was already revoked)"
//	@Failure		401	{object}	authsdk.Error	"MissingAuthorizationHeader, InvalidToken"
//	@Failure		503	{object}	authsdk.Error	"RevocationUnavailable"
//	@Router			/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := httpx.RequestBearer(r)
	if err != nil {
		authsdk.ErrMissingAuthorizationHeader.WriteError(w)
		return
	}

	if err := h.TokenService.Logout(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
