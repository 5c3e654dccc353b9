package domain

import "time"

// Credential records one issued access token. Only the token fingerprint is
// stored.
type Credential struct {
	ID        int64
	OwnerID   int64
	TokenHash string // base64url SHA-256, see cryptox.FingerprintToken
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TokenPair is what login and refresh return.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds until the access token expires
}
