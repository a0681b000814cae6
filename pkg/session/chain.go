package session

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Role is the author of a chain message.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// Roles returns the accepted message roles.
func Roles() []Role {
	return []Role{RoleUser, RoleSystem, RoleAssistant}
}

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !slices.Contains(Roles(), r) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Message is one entry of a chain. Messages are never modified after they
// are appended.
type Message struct {
	Role    Role
	Content string
}

// NewChainID returns a fresh random chain id.
func NewChainID() string {
	return uuid.NewString()
}
