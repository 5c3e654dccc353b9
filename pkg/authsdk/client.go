package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the credential service, usually through the gateway.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client with a 10 second request timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login exchanges a username and password for a token pair.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	body, err := jsonBody(LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", body, "")
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh mints a new access token. The returned refresh token is the one
// passed in.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", nil, refreshToken)
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes accessToken immediately.
func (c *SDKClient) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/logout", nil, accessToken)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// Validate asks the credential service to describe accessToken.
func (c *SDKClient) Validate(ctx context.Context, accessToken string) (*ValidateResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/validate", nil, accessToken)
	if err != nil {
		return nil, err
	}

	var out ValidateResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithPassword logs in and wraps the pair in a Session.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, username, password string) (*Session, error) {
	tokens, err := c.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}
