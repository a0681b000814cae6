package session

import (
	"errors"
	"fmt"
)

// ErrInvalidRole is returned by AddMessage for a role other than user,
// system or assistant.
var ErrInvalidRole = errors.New("invalid message role")

// AuthError is returned when an operation needs a token and none is stored,
// or when the backend rejects the credentials.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason
}

// ChainNotFoundError is returned for operations on a chain id that was never
// started.
type ChainNotFoundError struct {
	ID string
}

func (e *ChainNotFoundError) Error() string {
	return fmt.Sprintf("chain %q not found, start the chain first", e.ID)
}

func notLoggedIn() error {
	return &AuthError{Reason: "not logged in"}
}
