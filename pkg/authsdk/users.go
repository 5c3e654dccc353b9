package authsdk

import (
	"context"
	"net/http"
	"strconv"
)

// Sync states reported in UserResponse.SyncState.
const (
	SyncStatePublished = "published"
	SyncStatePending   = "pending"
)

// CreateUser adds a user to the identity directory. adminToken must carry
// the ADMIN role.
func (c *SDKClient) CreateUser(ctx context.Context, adminToken string, req UserRequest) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodPost, "/users", adminToken, req, http.StatusCreated)
}

// UpdateUser replaces username and roles. An empty Password keeps the
// current one.
func (c *SDKClient) UpdateUser(ctx context.Context, adminToken string, id int64, req UserRequest) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodPut, userPath(id), adminToken, req, http.StatusOK)
}

// DeleteUser soft deletes a user. The user can be restored.
func (c *SDKClient) DeleteUser(ctx context.Context, adminToken string, id int64) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodDelete, userPath(id), adminToken, nil, http.StatusOK)
}

// RestoreUser undoes DeleteUser.
func (c *SDKClient) RestoreUser(ctx context.Context, adminToken string, id int64) (*UserResponse, error) {
	return c.userCall(ctx, http.MethodPost, userPath(id)+"/restore", adminToken, nil, http.StatusOK)
}

// PurgeUser removes a user permanently.
func (c *SDKClient) PurgeUser(ctx context.Context, adminToken string, id int64) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, userPath(id)+"/permanent", nil, adminToken)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (c *SDKClient) userCall(ctx context.Context, method, path, token string, body any, want int) (*UserResponse, error) {
	var resp *http.Response
	var err error
	if body != nil {
		rd, encErr := jsonBody(body)
		if encErr != nil {
			return nil, encErr
		}
		resp, err = c.doRequest(ctx, method, path, rd, token)
	} else {
		resp, err = c.doRequest(ctx, method, path, nil, token)
	}
	if err != nil {
		return nil, err
	}

	var out UserResponse
	if err := decodeJSON(resp, &out, want); err != nil {
		return nil, err
	}
	return &out, nil
}

func userPath(id int64) string {
	return "/users/" + strconv.FormatInt(id, 10)
}
