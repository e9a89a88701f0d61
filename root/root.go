// Package root keeps the application root redirect and the admin password in
// step with configuration.
package root

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	// NodePath is the repository root node.
	NodePath = "/"

	RedirectResourceType = "sling:redirect"
	PropRedirectTarget   = "sling:target"
)

// Config holds the settings applied at start and on every reload. Empty
// values mean "no change".
type Config struct {
	Path          string
	AdminPassword string
}

// ApplicationRootService applies Config to the repository.
type ApplicationRootService struct {
	repo   repository.Repository
	logger *slog.Logger
}

func NewApplicationRootService(repo repository.Repository, logger *slog.Logger) *ApplicationRootService {
	return &ApplicationRootService{repo: repo, logger: logger}
}

// Apply sets the root redirect and the admin password. Failures are logged so
// that one bad setting does not block the other.
func (s *ApplicationRootService) Apply(ctx context.Context, cfg Config) {
	if cfg.Path != "" {
		if err := s.setRootPath(ctx, cfg.Path); err != nil {
			s.logger.Error("failed to set root path", "path", cfg.Path, "error", err)
		}
	}
	if cfg.AdminPassword != "" {
		if err := s.setAdminPassword(ctx, cfg.AdminPassword); err != nil {
			s.logger.Error("failed to set admin password", "error", err)
		}
	}
}

func (s *ApplicationRootService) setRootPath(ctx context.Context, path string) error {
	node, err := s.repo.Get(ctx, NodePath)
	if repository.IsNotFound(err) {
		s.logger.Warn("asked to set a missing root node", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get root node: %w", err)
	}
	if node.ResourceType() != RedirectResourceType {
		s.logger.Warn("asked to set a non-redirecting root node", "path", path)
		return nil
	}
	old := node.String(PropRedirectTarget)
	if old == path {
		return nil
	}
	s.logger.Info("changing root path", "from", old, "to", path)
	node.SetProperty(PropRedirectTarget, path)
	if err := s.repo.Update(ctx, node); err != nil {
		return fmt.Errorf("failed to update root node: %w", err)
	}
	return nil
}

func (s *ApplicationRootService) setAdminPassword(ctx context.Context, password string) error {
	if _, err := s.repo.FindAuthorizable(ctx, repository.AdminID); err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("could not find admin user to change password")
			return nil
		}
		return err
	}
	s.logger.Info("changing admin password")
	return s.repo.ChangePassword(ctx, repository.AdminID, password)
}

// Defaults for a fresh repository.
const (
	DefaultRootTarget    = "/index.html"
	DefaultAdminPassword = "admin"
)

// Bootstrap creates the admin user and the root redirect when a repository
// has neither. Existing nodes are never touched.
func (s *ApplicationRootService) Bootstrap(ctx context.Context) error {
	if _, err := s.repo.FindAuthorizable(ctx, repository.AdminID); repository.IsNotFound(err) {
		s.logger.Info("creating admin user")
		if err := s.repo.CreateUser(ctx, repository.AdminID, DefaultAdminPassword, nil); err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to find admin user: %w", err)
	}

	exists, err := s.repo.Exists(ctx, NodePath)
	if err != nil {
		return fmt.Errorf("failed to check root node: %w", err)
	}
	if exists {
		return nil
	}
	s.logger.Info("creating root redirect", "target", DefaultRootTarget)
	return s.repo.Update(ctx, repository.NewContent(NodePath, map[string]any{
		repository.PropResourceType: RedirectResourceType,
		PropRedirectTarget:          DefaultRootTarget,
	}))
}
