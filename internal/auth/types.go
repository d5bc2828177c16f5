package auth

import "errors"

// Role is the kind of caller a token was issued to.
type Role string

const (
	RoleRequester Role = "requester"
	RoleOperator  Role = "operator"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrInvalidRequester   = errors.New("invalid requester identity")
)
