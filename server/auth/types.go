package auth

import (
	"context"
	"fmt"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// AuthType records how a request was authenticated.
type AuthType string

const (
	AuthTypeNone  AuthType = ""
	AuthTypeBasic AuthType = "BASIC"
	AuthTypeCAS   AuthType = "CAS"
)

// Principal represents the user behind a request
type Principal struct {
	ID       string
	AuthType AuthType
}

// AnonymousPrincipal is attached to requests without credentials.
var AnonymousPrincipal = &Principal{ID: repository.Anonymous}

func (p *Principal) IsAnonymous() bool {
	return p == nil || p.ID == "" || p.ID == repository.Anonymous
}

func (p *Principal) IsAdmin() bool {
	return p != nil && p.ID == repository.AdminID
}

// Credentials represents authentication credentials
type Credentials struct {
	Username string
	Password string
}

// ErrorType represents the type of authentication error
type ErrorType string

const (
	ErrInvalidCredentials ErrorType = "invalid_credentials"
	ErrUnauthorized       ErrorType = "unauthorized"
)

// Error represents an authentication-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Authenticator defines the interface for authentication providers
type Authenticator interface {
	// Authenticate validates credentials and returns a Principal if successful
	Authenticate(ctx context.Context, creds Credentials) (*Principal, error)
}
