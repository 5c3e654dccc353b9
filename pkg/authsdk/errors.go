package authsdk

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aussiebroadwan/backoffice/pkg/httpx"
)

// Kind is the stable, machine-readable name of an error. Clients switch on
// Kind; Message is for humans.
type Kind string

const (
	KindMissingAuthorizationHeader    Kind = "MissingAuthorizationHeader"
	KindInvalidToken                  Kind = "InvalidToken"
	KindLoggedOutToken                Kind = "LoggedOutToken"
	KindTokenNotFound                 Kind = "TokenNotFound"
	KindMissingRoles                  Kind = "MissingRoles"
	KindInsufficientRoles             Kind = "InsufficientRoles"
	KindAuthenticationFailed          Kind = "AuthenticationFailed"
	KindInvalidRefreshToken           Kind = "InvalidRefreshToken"
	KindUsernameExtractionFailed      Kind = "UsernameExtractionFailed"
	KindUserNotFound                  Kind = "UserNotFound"
	KindSynchronizationDispatchFailed Kind = "SynchronizationDispatchFailed"
	KindRevocationUnavailable         Kind = "RevocationUnavailable"
	KindUsernameTaken                 Kind = "UsernameTaken"
	KindUserStateConflict             Kind = "UserStateConflict"
	KindInvalidRequest                Kind = "InvalidRequest"
	KindServerError                   Kind = "ServerError"
)

// Error is the error body returned by every service in the back office. It
// never carries keys, token material or internal identifiers.
type Error struct {
	// Status is the HTTP status code for this error
	Status int `json:"-"`

	Kind    Kind   `json:"error"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches on Kind so wrapped copies still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WriteError writes this Error to an HTTP response writer.
func (e *Error) WriteError(w http.ResponseWriter) {
	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	httpx.WriteJSON(w, e.Status, e)
}

var (
	ErrMissingAuthorizationHeader = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindMissingAuthorizationHeader,
		Message: "Missing or Invalid Authorization header",
	}

	ErrInvalidToken = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindInvalidToken,
		Message: "Invalid or expired token",
	}

	ErrLoggedOutToken = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindLoggedOutToken,
		Message: "Token has been logged out",
	}

	ErrTokenNotFound = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindTokenNotFound,
		Message: "Token not found",
	}

	ErrMissingRoles = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindMissingRoles,
		Message: "Token carries no roles",
	}

	ErrInsufficientRoles = &Error{
		Status:  http.StatusForbidden,
		Kind:    KindInsufficientRoles,
		Message: "Insufficient roles for this resource",
	}

	ErrAuthenticationFailed = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindAuthenticationFailed,
		Message: "Invalid username or password",
	}

	ErrInvalidRefreshToken = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindInvalidRefreshToken,
		Message: "Missing or invalid refresh token",
	}

	ErrUsernameExtractionFailed = &Error{
		Status:  http.StatusUnauthorized,
		Kind:    KindUsernameExtractionFailed,
		Message: "Unable to read username from token",
	}

	ErrUserNotFound = &Error{
		Status:  http.StatusNotFound,
		Kind:    KindUserNotFound,
		Message: "User not found",
	}

	ErrSynchronizationDispatchFailed = &Error{
		Status:  http.StatusBadGateway,
		Kind:    KindSynchronizationDispatchFailed,
		Message: "Change saved but propagation is delayed",
	}

	ErrRevocationUnavailable = &Error{
		Status:  http.StatusServiceUnavailable,
		Kind:    KindRevocationUnavailable,
		Message: "Authentication state is temporarily unavailable",
	}

	ErrUsernameTaken = &Error{
		Status:  http.StatusConflict,
		Kind:    KindUsernameTaken,
		Message: "Username is already in use",
	}

	// ErrUserStateConflict is a delete of a deleted user or a restore of a
	// live one.
	ErrUserStateConflict = &Error{
		Status:  http.StatusConflict,
		Kind:    KindUserStateConflict,
		Message: "User is already in the requested state",
	}

	ErrInvalidRequest = &Error{
		Status:  http.StatusBadRequest,
		Kind:    KindInvalidRequest,
		Message: "The request is malformed or missing required fields",
	}

	ErrServerError = &Error{
		Status:  http.StatusInternalServerError,
		Kind:    KindServerError,
		Message: "Internal server error",
	}
)

// parseErrorResponse turns a non-2xx response into an *Error. Unknown bodies
// fall back to a ServerError carrying the status text.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var e Error
	if err := json.Unmarshal(body, &e); err == nil && e.Kind != "" {
		e.Status = resp.StatusCode
		return &e
	}

	return &Error{
		Status:  resp.StatusCode,
		Kind:    KindServerError,
		Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
