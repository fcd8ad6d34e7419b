package domain

import "errors"

// ErrorKind is the closed set of error categories the core surfaces to its
// callers. HTTP/gRPC-facing layers map a Kind to a status code in exactly
// one place (see httpapi.respondError) so the mapping never drifts between
// handlers.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "INVALID_INPUT"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInactive           ErrorKind = "INACTIVE"
	KindConflict           ErrorKind = "CONFLICT"
	KindUnauthorized       ErrorKind = "UNAUTHORIZED"
	KindInsufficientScope  ErrorKind = "INSUFFICIENT_SCOPE"
	KindRateLimited        ErrorKind = "RATE_LIMITED"
	KindDenied             ErrorKind = "DENIED"
	KindUnavailable        ErrorKind = "UNAVAILABLE"
	KindInternal           ErrorKind = "INTERNAL"
)

// Error is a sentinel-style error carrying a Kind, a machine-readable
// ReasonCode and a human Detail. Core components return *Error instead of
// ad hoc fmt.Errorf so callers can errors.As into it.
type Error struct {
	Kind       ErrorKind
	ReasonCode string
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, reasonCode, detail string, cause error) *Error {
	return &Error{Kind: kind, ReasonCode: reasonCode, Detail: detail, Err: cause}
}

// Sentinel store-level errors, matching spec.md §4.1's error taxonomy.
var (
	ErrNotFound         = NewError(KindNotFound, "NOT_FOUND", "entity not found", nil)
	ErrAlreadyExists    = NewError(KindConflict, "ALREADY_EXISTS", "entity already exists", nil)
	ErrConflictingUpdate = NewError(KindConflict, "CONFLICTING_UPDATE", "optimistic lock mismatch", nil)
	ErrUnavailable      = NewError(KindUnavailable, "STORE_UNAVAILABLE", "store unavailable", nil)
)

// IsKind reports whether err (or something it wraps) carries the given Kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
