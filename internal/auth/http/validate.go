package http

import (
	"net/http"

	"github.com/aussiebroadwan/backoffice/internal/auth/service"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/httpx"
)

// ValidateHandler serves POST /auth/validate for backends that want the
// credential service's view of a token.
type ValidateHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Validate
//	@Description	Verifies the bearer token and reports its subject, authorities, expiry and logout state.
//	@Tags			Auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.ValidateResponse
//	@Failure		401	{object}	authsdk.Error	"MissingAuthorizationHeader, InvalidToken"
//	@Failure		503	{object}	authsdk.Error	"RevocationUnavailable"
//	@Router			/auth/validate [post].
func (h *ValidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := httpx.RequestBearer(r)
	if err != nil {
		authsdk.ErrMissingAuthorizationHeader.WriteError(w)
		return
	}

	in, err := h.TokenService.Validate(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.ValidateResponse{
		Subject:     in.Claims.Subject,
		Authorities: in.Claims.Authorities,
		LoggedOut:   in.LoggedOut,
	}
	if in.Claims.ExpiresAt != nil {
		resp.ExpiresAt = in.Claims.ExpiresAt.Unix()
	}
	if resp.Authorities == nil {
		resp.Authorities = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
