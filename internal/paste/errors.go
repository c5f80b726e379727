package paste

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrInvalidRequest   = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrContentRequired  = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrContentTooLarge  = NewErr("CONTENT_TOO_LARGE", "content too large", http.StatusBadRequest)
	ErrInvalidTTL       = NewErr("INVALID_TTL", "ttl_seconds must be at least 1 and within range", http.StatusBadRequest)
	ErrInvalidMaxViews  = NewErr("INVALID_MAX_VIEWS", "max_views must be at least 1", http.StatusBadRequest)
	ErrPasswordTooLong  = NewErr("PASSWORD_TOO_LONG", "password too long", http.StatusBadRequest)
	ErrNotFound         = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrExpired          = NewErr("PASTE_EXPIRED", "paste expired", http.StatusNotFound)
	ErrViewLimitReached = NewErr("VIEW_LIMIT_EXCEEDED", "view limit exceeded", http.StatusNotFound)
	ErrPasswordRequired = NewErr("PASSWORD_REQUIRED", "password required", http.StatusUnauthorized)
	ErrInvalidPassword  = NewErr("INVALID_PASSWORD", "invalid password", http.StatusUnauthorized)
	ErrMethodNotAllowed = NewErr("METHOD_NOT_ALLOWED", "method not allowed", http.StatusMethodNotAllowed)
	ErrInternal         = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

// Err is a caller-facing failure with a stable code.
type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// AsErr returns the *Err behind err, or ErrInternal for anything unclassified.
func AsErr(err error) *Err {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Err); ok {
		return e
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e
	}
	var e *Err
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	return AsErr(err).Status
}

// IsNotFound reports whether err is one of the not-found class: missing,
// expired or out of views.
func IsNotFound(err error) bool {
	return Status(err) == http.StatusNotFound
}

// Reason is a short label for metrics and logs.
func Reason(err error) string {
	switch AsErr(err) {
	case ErrNotFound:
		return "not_found"
	case ErrExpired:
		return "expired"
	case ErrViewLimitReached:
		return "view_limit"
	case ErrPasswordRequired:
		return "password_required"
	case ErrInvalidPassword:
		return "invalid_password"
	case ErrInternal:
		return "internal"
	}
	return "invalid_input"
}
