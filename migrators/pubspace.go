package migrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const pubspacePageSize = 4000

// UserLister lists every user with a home.
type UserLister interface {
	AllUserIDs(ctx context.Context) ([]string, error)
}

// PubspaceStats counts what a pubspace run did.
type PubspaceStats struct {
	Total      int `json:"total"`
	Upgradable int `json:"upgradeable"`
	Upgraded   int `json:"upgraded"`
}

// PubspaceMigrator sets _reorderOnly on the locations page of every public
// space that has been initialized.
type PubspaceMigrator struct {
	repo     repository.ContentManager
	users    UserLister
	pageSize int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewPubspaceMigrator builds the migrator. pagesPerSecond paces the pages;
// zero disables pacing.
func NewPubspaceMigrator(repo repository.ContentManager, users UserLister, pagesPerSecond float64, logger *slog.Logger) *PubspaceMigrator {
	m := &PubspaceMigrator{repo: repo, users: users, pageSize: pubspacePageSize, logger: logger}
	if pagesPerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(pagesPerSecond), 1)
	}
	return m
}

func (m *PubspaceMigrator) Migrate(ctx context.Context) (PubspaceStats, error) {
	var stats PubspaceStats
	ids, err := m.users.AllUserIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list users: %w", err)
	}
	stats.Total = len(ids)
	m.logger.Info("checking user homes for pubspace nodes to upgrade", "total", stats.Total)

	processed := 0
	for start := 0; start < len(ids); start += m.pageSize {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}
		end := min(start+m.pageSize, len(ids))
		for _, id := range ids[start:end] {
			processed++
			upgradable, upgraded, err := m.migrateUser(ctx, id)
			if err != nil {
				return stats, err
			}
			if upgradable {
				stats.Upgradable++
			}
			if upgraded {
				stats.Upgraded++
			}
		}
		m.logger.Info("processed pubspace page", "processed", processed, "total", stats.Total)
	}
	m.logger.Info("pubspace migration finished",
		"total", stats.Total, "upgradeable", stats.Upgradable, "upgraded", stats.Upgraded)
	return stats, nil
}

func (m *PubspaceMigrator) migrateUser(ctx context.Context, id string) (upgradable, upgraded bool, err error) {
	path := repository.HomePath(id) + "/public/pubspace"
	pubspace, err := m.repo.Get(ctx, path)
	if repository.IsNotFound(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to get %s: %w", path, err)
	}
	if !pubspace.HasProperty(PropStructure0) {
		return false, false, nil
	}
	m.logger.Debug("user has an upgradeable pubspace", "userId", id)

	var structure map[string]any
	if err := json.Unmarshal([]byte(pubspace.String(PropStructure0)), &structure); err != nil {
		m.logger.Error("malformed json in pubspace", "userId", id, "error", err)
		return true, false, nil
	}
	profile, _ := structure["profile"].(map[string]any)
	locations, _ := profile["locations"].(map[string]any)
	if locations == nil {
		return true, false, nil
	}
	if reorder, _ := locations["_reorderOnly"].(bool); reorder {
		return true, false, nil
	}
	locations["_reorderOnly"] = true

	data, err := json.Marshal(structure)
	if err != nil {
		return true, false, err
	}
	pubspace.SetProperty(PropStructure0, string(data))
	if err := m.repo.Update(ctx, pubspace); err != nil {
		return true, false, fmt.Errorf("failed to update %s: %w", path, err)
	}
	m.logger.Info("updated pubspace", "userId", id, "path", path)
	return true, true, nil
}
