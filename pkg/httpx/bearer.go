package httpx

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNoBearer is returned when the Authorization header is absent or does not
// use the Bearer scheme.
var ErrNoBearer = errors.New("httpx: missing or invalid bearer authorization")

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNoBearer
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoBearer
	}
	return token, nil
}

// RequestBearer is BearerToken applied to r's Authorization header.
func RequestBearer(r *http.Request) (string, error) {
	return BearerToken(r.Header.Get("Authorization"))
}
