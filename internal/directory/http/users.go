package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
	"github.com/aussiebroadwan/backoffice/internal/directory/service"
	"github.com/aussiebroadwan/backoffice/pkg/authsdk"
	"github.com/aussiebroadwan/backoffice/pkg/httpx"
)

const maxUserBody = 64 << 10

// UsersHandler serves the /users admin routes.
type UsersHandler struct {
	Users UserService
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	u, err := h.Users.GetUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(u, ""))
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeUser(w, r)
	if !ok {
		return
	}
	res, err := h.Users.CreateUser(r.Context(), in)
	writeResult(w, r, http.StatusCreated, res, err)
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	in, ok := decodeUser(w, r)
	if !ok {
		return
	}
	res, err := h.Users.UpdateUser(r.Context(), id, in)
	writeResult(w, r, http.StatusOK, res, err)
}

func (h *UsersHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Users.SoftDeleteUser(r.Context(), id)
	writeResult(w, r, http.StatusOK, res, err)
}

func (h *UsersHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Users.RestoreUser(r.Context(), id)
	writeResult(w, r, http.StatusOK, res, err)
}

func (h *UsersHandler) Purge(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	_, err := h.Users.DeleteUserPermanently(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// writeResult reports a mutation. A failed dispatch is still an error
// response even though the change is committed.
func writeResult(w http.ResponseWriter, r *http.Request, status int, res service.Result, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	state := authsdk.SyncStatePending
	if res.Published {
		state = authsdk.SyncStatePublished
	}
	httpx.WriteJSON(w, status, toResponse(res.User, state))
}

func toResponse(u domain.User, syncState string) authsdk.UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return authsdk.UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Roles:     roles,
		Deleted:   u.Deleted(),
		Version:   u.Version,
		SyncState: syncState,
	}
}

func decodeUser(w http.ResponseWriter, r *http.Request) (service.UserInput, bool) {
	var req authsdk.UserRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUserBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return service.UserInput{}, false
	}
	return service.UserInput{Username: req.Username, Password: req.Password, Roles: req.Roles}, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		authsdk.ErrUserNotFound.WriteError(w)
		return 0, false
	}
	return id, true
}
