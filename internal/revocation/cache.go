// Package revocation is the shared store the Credential Service writes and
// the gateway reads to decide whether a bearer token was logged out.
//
// Each issued token is two keys: the raw token string maps to its decimal
// credential id, and token:<id>:is_logged_out holds "true" or "false".
package revocation

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrTokenNotFound means either lookup missed. Callers treat it like a
	// logged out token.
	ErrTokenNotFound = errors.New("revocation: token not found")

	// ErrUnavailable means the cache could not answer within its timeout and
	// retry budget.
	ErrUnavailable = errors.New("revocation: cache unavailable")
)

const (
	flagTrue  = "true"
	flagFalse = "false"
)

// Cache is implemented by RedisCache and MemoryCache.
type Cache interface {
	// RecordIssuedToken writes both keys for a fresh token as one unit.
	RecordIssuedToken(ctx context.Context, tokenID int64, token string, ttl time.Duration) error

	// IsLoggedOut resolves token to its id and then to its flag.
	IsLoggedOut(ctx context.Context, token string) (bool, error)

	// MarkLoggedOut flips the flag to "true" for every id that still has an
	// entry. Ids without an entry are skipped.
	MarkLoggedOut(ctx context.Context, tokenIDs ...int64) error

	Ping(ctx context.Context) error
}

// FlagKey is the key holding the logged out flag for tokenID.
func FlagKey(tokenID int64) string {
	return "token:" + strconv.FormatInt(tokenID, 10) + ":is_logged_out"
}
