// Package migrators holds one-off repair jobs over the content repository.
package migrators

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// PropertyMigrator inspects one stored row. It may change row in place and
// report true to have it written back.
type PropertyMigrator interface {
	Name() string
	Migrate(ctx context.Context, row *repository.Content) (bool, error)
}

// RunStats counts the rows a run visited and rewrote.
type RunStats struct {
	Rows    int `json:"rows"`
	Changed int `json:"changed"`
}

// Runner feeds every repository row to a set of migrators.
type Runner struct {
	repo   repository.ContentManager
	logger *slog.Logger
}

func NewRunner(repo repository.ContentManager, logger *slog.Logger) *Runner {
	return &Runner{repo: repo, logger: logger}
}

// Run walks all rows under prefix. Changed rows are written after the walk
// so that the store is never modified while it is being iterated.
func (r *Runner) Run(ctx context.Context, prefix string, migrators ...PropertyMigrator) (RunStats, error) {
	var stats RunStats
	var dirty []*repository.Content
	err := r.repo.Walk(ctx, prefix, func(row *repository.Content) error {
		stats.Rows++
		changed := false
		for _, m := range migrators {
			ok, err := m.Migrate(ctx, row)
			if err != nil {
				r.logger.Error("migrator failed", "migrator", m.Name(), "path", row.Path, "error", err)
				continue
			}
			changed = changed || ok
		}
		if changed {
			dirty = append(dirty, row)
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("failed to walk %q: %w", prefix, err)
	}
	for _, row := range dirty {
		if err := r.repo.Update(ctx, row); err != nil {
			return stats, fmt.Errorf("failed to update %s: %w", row.Path, err)
		}
		stats.Changed++
	}
	r.logger.Info("migration run finished", "rows", stats.Rows, "changed", stats.Changed)
	return stats, nil
}
