package foreignprincipal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	// GroupID names authenticated people without a portal account.
	GroupID = "sakai:foreignPrincipal"
	// PropDynamic marks a group whose membership is computed per request.
	PropDynamic = "dynamic"
)

// Manager answers membership in the dynamic foreign principal group.
type Manager struct {
	users  repository.AuthorizableManager
	logger *slog.Logger
}

func NewManager(users repository.AuthorizableManager, logger *slog.Logger) *Manager {
	return &Manager{users: users, logger: logger}
}

// EnsureGroup creates the foreign principal group if it is missing.
func (m *Manager) EnsureGroup(ctx context.Context) error {
	_, err := m.users.FindAuthorizable(ctx, GroupID)
	if err == nil {
		return nil
	}
	if !repository.IsNotFound(err) {
		return fmt.Errorf("failed to find group %s: %w", GroupID, err)
	}
	m.logger.Info("creating group for dynamic principal", "group", GroupID)
	if err := m.users.CreateGroup(ctx, GroupID, map[string]any{PropDynamic: "true"}); err != nil {
		return fmt.Errorf("failed to create group %s: %w", GroupID, err)
	}
	return nil
}

// HasPrincipalInContext reports whether userID belongs to principal. Only the
// foreign principal group is dynamic: its members are the users the
// repository does not know.
func (m *Manager) HasPrincipalInContext(ctx context.Context, principal, userID string) bool {
	if principal != GroupID {
		return false
	}
	_, err := m.users.FindAuthorizable(ctx, userID)
	switch {
	case err == nil:
		return false
	case repository.IsNotFound(err):
		m.logger.Info("user not found, treating as foreign principal", "userId", userID)
		return true
	default:
		m.logger.Error("failed to find user", "userId", userID, "error", err)
		return false
	}
}
