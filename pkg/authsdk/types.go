package authsdk

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	// AccessToken is the JWT presented to the gateway on every request
	AccessToken string `json:"access_token"`

	// RefreshToken is a JWT carrying only the subject; refresh returns it unchanged
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`
}

// ValidateResponse describes an access token as seen by the credential service.
type ValidateResponse struct {
	Subject     string   `json:"sub"`
	Authorities []string `json:"authorities"`
	ExpiresAt   int64    `json:"exp"`
	LoggedOut   bool     `json:"logged_out"`
}

// UserRequest is the body used to create or update a user in the identity
// directory. Password is plain text on the wire and hashed by the directory.
type UserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password,omitempty"`
	Roles    []string `json:"roles"`
}

// UserResponse is the directory view of a user. Password hashes never leave
// the service over HTTP.
type UserResponse struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	Deleted   bool     `json:"deleted"`
	Version   int64    `json:"version"`
	SyncState string   `json:"sync_state,omitempty"`
}

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains the status of individual components (only for /readyz)
	Checks map[string]string `json:"checks,omitempty"`
}
