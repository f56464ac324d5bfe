package backend

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/fitcoach-session/internal/errors"
)

// ErrorKind classifies backend rejections so callers can decide between
// tearing the session down and surfacing the error.
type ErrorKind int

const (
	// KindOther is any failure that says nothing about the token.
	KindOther ErrorKind = iota
	// KindUnauthorized is a 401/403 with an ambiguous reason.
	KindUnauthorized
	// KindMalformedToken means the backend could not parse the bearer token.
	KindMalformedToken
	// KindCorruptedUser means the token decoded but mapped to invalid user information.
	KindCorruptedUser
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindMalformedToken:
		return "malformed_token"
	case KindCorruptedUser:
		return "corrupted_user"
	default:
		return "other"
	}
}

// APIError is a non-2xx (or success:false) response from the backend.
type APIError struct {
	StatusCode int
	Reason     string
	Path       string
}

func (e *APIError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Unwrap maps rejections onto the shared sentinels.
func (e *APIError) Unwrap() error {
	switch e.Kind() {
	case KindMalformedToken:
		return apperrors.ErrMalformedToken
	case KindCorruptedUser:
		return apperrors.ErrCorruptedToken
	case KindUnauthorized:
		return apperrors.ErrNotAuthenticated
	default:
		return nil
	}
}

// IsAuthRejection reports a 401-class status.
func (e *APIError) IsAuthRejection() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *APIError) Kind() ErrorKind {
	if !e.IsAuthRejection() {
		return KindOther
	}
	reason := strings.ToLower(e.Reason)
	switch {
	case strings.Contains(reason, "invalid user information"):
		return KindCorruptedUser
	case strings.Contains(reason, "malformed"),
		strings.Contains(reason, "invalid token"),
		strings.Contains(reason, "could not validate credentials"),
		strings.Contains(reason, "not enough segments"):
		return KindMalformedToken
	default:
		return KindUnauthorized
	}
}

// AsAPIError extracts an *APIError from err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if apperrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
