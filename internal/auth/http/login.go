package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/backoffice/internal/auth/service"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/httpx"
)

// maxLoginBody caps the login request body.
const maxLoginBody = 64 << 10

// LoginHandler serves POST /auth/login.
type LoginHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Login
//	@Description	Authenticates a mirrored identity and returns a new access and refresh token.
//	@Description	Every token previously issued to the user is revoked before the new pair is issued.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.Error	"InvalidRequest"
//	@Failure		401		{object}	authsdk.Error	"AuthenticationFailed"
//	@Failure		429		{object}	authsdk.Error	"RateLimited"
//	@Failure		503		{object}	authsdk.Error	"RevocationUnavailable"
//	@Router			/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody))
	if err := dec.Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	pair, err := h.TokenService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, pair)
}
