package migrators

import (
	"container/list"
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Row bookkeeping properties.
const (
	PropRowPath     = "_path"
	PropContentID   = "_:cid"
	PropNextVersion = "_nextVersion"
	PropDeleted     = "_deleted"

	knownPathsSize = 10000
)

// MissingContentMigrator looks for rows pointing at content that can no
// longer be loaded and sorts them by why they were orphaned.
type MissingContentMigrator struct {
	repo   repository.ContentManager
	logger *slog.Logger

	mu               sync.Mutex
	known            *fifoSet
	withDeleteY      map[string]struct{}
	withCID          map[string]struct{}
	withNewerVersion map[string]struct{}
	other            map[string]struct{}
}

func NewMissingContentMigrator(repo repository.ContentManager, logger *slog.Logger) *MissingContentMigrator {
	return &MissingContentMigrator{
		repo:             repo,
		logger:           logger,
		known:            newFIFOSet(knownPathsSize),
		withDeleteY:      map[string]struct{}{},
		withCID:          map[string]struct{}{},
		withNewerVersion: map[string]struct{}{},
		other:            map[string]struct{}{},
	}
}

func (m *MissingContentMigrator) Name() string { return "MissingContentMigrator" }

// Migrate marks rows for deletion when their content is gone for good.
func (m *MissingContentMigrator) Migrate(ctx context.Context, row *repository.Content) (bool, error) {
	path := row.String(PropRowPath)
	if path == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.known.contains(path) {
		return false, nil
	}
	exists, err := m.repo.Exists(ctx, path)
	if err != nil {
		return false, err
	}
	if exists {
		m.known.add(path)
		return false, nil
	}

	m.logger.Warn("null content", "path", path, "row", row.Path)
	switch {
	case row.HasProperty(PropContentID):
		m.withCID[path] = struct{}{}
		row.SetProperty(PropDeleted, "Y")
		return true, nil
	case row.String(PropNextVersion) != "":
		m.withNewerVersion[path] = struct{}{}
		row.SetProperty(PropDeleted, "Y")
		return true, nil
	case row.String(PropDeleted) == "Y":
		m.withDeleteY[path] = struct{}{}
	default:
		m.other[path] = struct{}{}
	}
	return false, nil
}

// MissingContentReport summarizes what Migrate found.
type MissingContentReport struct {
	NullContentCount               int      `json:"nullContentCount"`
	DeletedContentWithStructure    []string `json:"deletedContentWithStructure"`
	DeletedContentWithoutStructure []string `json:"deletedContentWithoutStructure"`
	DeletedContentWithNewerVersion []string `json:"deletedContentWithNewerVersion"`
	Oddities                       []string `json:"oddities"`
}

func (m *MissingContentMigrator) Report() MissingContentReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	union := map[string]struct{}{}
	for _, set := range []map[string]struct{}{m.other, m.withCID, m.withDeleteY} {
		for p := range set {
			union[p] = struct{}{}
		}
	}
	return MissingContentReport{
		NullContentCount:               len(union),
		DeletedContentWithStructure:    difference(m.withCID, m.withDeleteY),
		DeletedContentWithoutStructure: difference(m.withDeleteY, m.withCID),
		DeletedContentWithNewerVersion: difference(m.withNewerVersion, nil),
		Oddities:                       difference(m.other, nil),
	}
}

func difference(a, b map[string]struct{}) []string {
	out := []string{}
	for p := range a {
		if _, ok := b[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// fifoSet remembers the last size values added.
type fifoSet struct {
	size  int
	order *list.List
	items map[string]*list.Element
}

func newFIFOSet(size int) *fifoSet {
	return &fifoSet{size: size, order: list.New(), items: map[string]*list.Element{}}
}

func (s *fifoSet) contains(v string) bool {
	_, ok := s.items[v]
	return ok
}

func (s *fifoSet) add(v string) {
	if s.contains(v) {
		return
	}
	s.items[v] = s.order.PushBack(v)
	if s.order.Len() > s.size {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(string))
	}
}
