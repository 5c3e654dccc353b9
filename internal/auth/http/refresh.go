package http

import (
	"net/http"

	"github.com/aussiebroadwan/backoffice/internal/auth/service"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/httpx"
)

// RefreshHandler serves POST /auth/refresh. The refresh token travels in the
// Authorization header and is handed back unchanged.
type RefreshHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Refresh
//	@Description	Issues a new access token for the subject of the refresh token.
//	@Description	The refresh token is returned unchanged and stays valid until it expires.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.TokenResponse
//	@Failure		401	{object}	authsdk.Error	"InvalidRefreshToken, UsernameExtractionFailed"
//	@Failure		404	{object}	authsdk.Error	"UserNotFound"
//	@Failure		503	{object}	authsdk.Error	"RevocationUnavailable"
//	@Router			/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := httpx.RequestBearer(r)
	if err != nil {
		authsdk.ErrInvalidRefreshToken.WriteError(w)
		return
	}

	pair, err := h.TokenService.Refresh(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}
