package auth

import (
	"context"
	"log/slog"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// RepositoryAuthenticator checks Basic credentials against the users stored in
// the content repository.
type RepositoryAuthenticator struct {
	users  repository.AuthorizableManager
	logger *slog.Logger
}

func NewRepositoryAuthenticator(users repository.AuthorizableManager, logger *slog.Logger) *RepositoryAuthenticator {
	return &RepositoryAuthenticator{users: users, logger: logger}
}

// Authenticate implements Authenticator
func (a *RepositoryAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*Principal, error) {
	if creds.Username == "" || creds.Username == repository.Anonymous {
		return nil, &Error{Type: ErrInvalidCredentials, Message: "invalid username or password"}
	}
	ok, err := a.users.CheckPassword(ctx, creds.Username, creds.Password)
	if err != nil && !repository.IsNotFound(err) {
		return nil, &Error{Type: ErrUnauthorized, Message: "failed to check password", Err: err}
	}
	if !ok {
		a.logger.Info("authentication failed", "username", creds.Username)
		return nil, &Error{Type: ErrInvalidCredentials, Message: "invalid username or password"}
	}
	a.logger.Debug("authentication successful", "username", creds.Username)
	return &Principal{ID: creds.Username, AuthType: AuthTypeBasic}, nil
}
