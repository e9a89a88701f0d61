package migrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	PropStructure0    = "structure0"
	PropSchemaVersion = "sakai:schemaversion"

	currentSchemaVersion = "2"
)

var filePathPattern = regexp.MustCompile(`^a:\S+/(public/pubspace|private/privspace).*$`)

// ForcedFileMigrator finds pubspace and privspace documents still on the old
// page structure and migrates them on request.
type ForcedFileMigrator struct {
	repo   repository.ContentManager
	logger *slog.Logger

	mu         sync.Mutex
	candidates map[string]struct{}
}

func NewForcedFileMigrator(repo repository.ContentManager, logger *slog.Logger) *ForcedFileMigrator {
	return &ForcedFileMigrator{repo: repo, logger: logger, candidates: map[string]struct{}{}}
}

func (m *ForcedFileMigrator) Name() string { return "ForcedFileMigrator" }

// Migrate only records candidates; rows are never rewritten during a scan.
func (m *ForcedFileMigrator) Migrate(_ context.Context, row *repository.Content) (bool, error) {
	if row.HasProperty(PropStructure0) && filePathPattern.MatchString(row.Path) {
		m.mu.Lock()
		m.candidates[row.Path] = struct{}{}
		m.mu.Unlock()
	}
	return false, nil
}

// Candidates returns the recorded paths in order.
func (m *ForcedFileMigrator) Candidates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.candidates))
	for p := range m.candidates {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MigrateCandidates upgrades every candidate that still needs it and returns
// how many did. With dryRun nothing is written.
func (m *ForcedFileMigrator) MigrateCandidates(ctx context.Context, dryRun bool) (int, error) {
	count := 0
	for _, path := range m.Candidates() {
		content, err := m.repo.Get(ctx, path)
		if repository.IsNotFound(err) {
			continue
		}
		if err != nil {
			return count, fmt.Errorf("failed to get %s: %w", path, err)
		}
		if !needsMigration(content) {
			continue
		}
		m.logger.Info("need to migrate path", "path", path, "dryRun", dryRun)
		count++
		if dryRun {
			continue
		}
		if err := migrateFileContent(content); err != nil {
			m.logger.Warn("skipping malformed structure", "path", path, "error", err)
			count--
			continue
		}
		if err := m.repo.Update(ctx, content); err != nil {
			return count, fmt.Errorf("failed to update %s: %w", path, err)
		}
	}
	return count, nil
}

func needsMigration(content *repository.Content) bool {
	return content.HasProperty(PropStructure0) && content.String(PropSchemaVersion) != currentSchemaVersion
}

// migrateFileContent rewrites structure0 in canonical form and stamps the
// schema version.
func migrateFileContent(content *repository.Content) error {
	var structure map[string]any
	if err := json.Unmarshal([]byte(content.String(PropStructure0)), &structure); err != nil {
		return fmt.Errorf("failed to parse %s: %w", PropStructure0, err)
	}
	data, err := json.Marshal(structure)
	if err != nil {
		return err
	}
	content.SetProperty(PropStructure0, string(data))
	content.SetProperty(PropSchemaVersion, currentSchemaVersion)
	return nil
}
