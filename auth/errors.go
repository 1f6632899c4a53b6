package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrStateMismatch means the callback's state is not the one we sent,
	// which is how a forged (CSRF) redirect shows up.
	ErrStateMismatch = errors.New("state parameter does not match the one sent")
	// ErrMissingCode means the callback carried no authorization code.
	ErrMissingCode = errors.New("callback has no authorization code")
	// ErrIncompleteToken means a token response lacked the access or refresh token.
	ErrIncompleteToken = errors.New("token response lacks an access or refresh token")
	// ErrNoRefreshToken means there is nothing to refresh with.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrNotAuthenticated means the API does not accept the current token.
	ErrNotAuthenticated = errors.New("access token is not authenticated")
	// ErrNoReceiver means an interactive authorization was needed but no
	// way to receive the callback was given.
	ErrNoReceiver = errors.New("no callback receiver for the authorization flow")
	// ErrNoInput means the input source closed before a line was read.
	ErrNoInput = errors.New("no input received")
)

// AuthError reports a failed authorization, code exchange or refresh.
type AuthError struct {
	Op  string
	Err error
}

// Error implements the error interface for AuthError.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
