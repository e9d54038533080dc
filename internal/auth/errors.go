// ABOUTME: Error taxonomy for authentication and authorization failures
// ABOUTME: Handlers map Kind onto HTTP status codes; Msg is safe for clients

package auth

import "fmt"

// Kind classifies an auth error for transport mapping.
type Kind int

const (
	// KindValidation covers malformed or incomplete requests.
	KindValidation Kind = iota
	// KindAuthentication covers failed identity proofs.
	KindAuthentication
	// KindAuthorization covers authenticated principals lacking permission.
	KindAuthorization
	// KindNotFound covers missing resources.
	KindNotFound
	// KindInternal covers everything that is our fault.
	KindInternal
)

// Error is a classified auth failure. Msg is safe to show to callers;
// wrapped causes stay server-side.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ValidationError creates a validation-kind error.
func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// AuthenticationError creates an authentication-kind error.
func AuthenticationError(msg string) *Error {
	return &Error{Kind: KindAuthentication, Msg: msg}
}

// AuthorizationError creates an authorization-kind error.
func AuthorizationError(msg string) *Error {
	return &Error{Kind: KindAuthorization, Msg: msg}
}

// NotFoundError creates a not-found-kind error.
func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// InternalError wraps an unexpected failure with a generic client message.
func InternalError(err error) *Error {
	return &Error{Kind: KindInternal, Msg: "something went wrong", Err: err}
}
