package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	// ErrTokenExists is returned by SessionStore.Create on a token collision.
	ErrTokenExists = errors.New("session token already exists")
)

// Kind classifies an authentication failure.
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindSessionNotFound
	KindSessionExpired
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindSessionNotFound:
		return "SessionNotFound"
	case KindSessionExpired:
		return "SessionExpired"
	default:
		return "Unknown"
	}
}

// Error is the failure returned by Service for credential and session problems.
// It unwraps to the matching sentinel, so errors.Is(err, ErrSessionExpired) works.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind) *Error {
	switch k {
	case KindInvalidCredentials:
		return &Error{Kind: k, Err: ErrInvalidCredentials}
	case KindSessionNotFound:
		return &Error{Kind: k, Err: ErrSessionNotFound}
	default:
		return &Error{Kind: KindSessionExpired, Err: ErrSessionExpired}
	}
}

// KindOf extracts the Kind of an auth failure.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}
