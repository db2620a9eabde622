package guard

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/marketplace-gateway/pkg/client"
)

// Sentinel errors matched by AuthError.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
)

// AuthError is a guard decision that denied access.
type AuthError struct {
	// Code is CodeUnauthorized or CodeForbidden.
	Code    client.Code
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps the code onto ErrUnauthenticated or ErrForbidden.
func (e *AuthError) Unwrap() error {
	if e.Code == client.CodeUnauthorized {
		return ErrUnauthenticated
	}
	return ErrForbidden
}

// AsFailure converts the error into the gateway failure taxonomy.
func (e *AuthError) AsFailure() *client.Failure {
	return &client.Failure{
		Code:    e.Code,
		Message: e.Message,
	}
}

// FailureFrom converts err into a Failure. AuthErrors keep their code; any
// other error is reported as UNAUTHORIZED.
func FailureFrom(err error) *client.Failure {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.AsFailure()
	}
	return &client.Failure{Code: client.CodeUnauthorized, Message: err.Error()}
}

func unauthorized(msg string) *AuthError {
	return &AuthError{Code: client.CodeUnauthorized, Message: msg}
}

func forbidden(msg string) *AuthError {
	return &AuthError{Code: client.CodeForbidden, Message: msg}
}
