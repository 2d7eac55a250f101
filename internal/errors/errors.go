package errors

import (
	"errors"
	"fmt"
)

// Common error types for the authentication and polling core
var (
	// Token lifecycle errors
	ErrNeedsReauthorization = errors.New("needs reauthorization")
	ErrRefreshInvalid       = errors.New("refresh token invalid")

	// Authorization flow errors
	ErrCallbackTimeout     = errors.New("callback timed out")
	ErrStateMismatch       = errors.New("state mismatch")
	ErrTokenExchange       = errors.New("token exchange failed")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrListenerUnavailable = errors.New("callback listener unavailable")

	// Usage endpoint errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrServerUnavailable = errors.New("server unavailable")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
