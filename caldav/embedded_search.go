package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
	"github.com/ets-berkeley-edu/myberkeley/search/solr"
)

// EmbeddedSearchStore is an EmbeddedStore that searches through the index
// instead of scanning the store.
type EmbeddedSearchStore struct {
	*EmbeddedStore
	searcher  search.Searcher
	baseQuery string
}

var _ Connector = (*EmbeddedSearchStore)(nil)

// NewEmbeddedSearchStore creates the connector for userID.
func NewEmbeddedSearchStore(userID string, repo repository.Repository, searcher search.Searcher, logger *slog.Logger) *EmbeddedSearchStore {
	return &EmbeddedSearchStore{
		EmbeddedStore: NewEmbeddedStore(userID, repo, logger),
		searcher:      searcher,
		baseQuery:     "resourceType:" + ComponentResourceType + ` AND path:"` + StorePath(userID) + `"`,
	}
}

// QueryForCriteria builds the index query for criteria.
func (s *EmbeddedSearchStore) QueryForCriteria(criteria SearchCriteria) string {
	var b strings.Builder
	b.WriteString(s.baseQuery)
	switch criteria.Mode {
	case ModeRequired:
		b.WriteString(` AND -content:"CATEGORIES:` + CategoryArchived + `"`)
		b.WriteString(` AND content:"CATEGORIES:` + CategoryRequired + `"`)
	case ModeUnrequired:
		b.WriteString(` AND -content:"CATEGORIES:` + CategoryArchived + `"`)
		b.WriteString(` AND -content:"CATEGORIES:` + CategoryRequired + `"`)
	case ModeAllUnarchived:
		b.WriteString(` AND -content:"CATEGORIES:` + CategoryArchived + `"`)
	case ModeAllArchived:
		b.WriteString(` AND content:"CATEGORIES:` + CategoryArchived + `"`)
	}
	b.WriteString(` AND content:"BEGIN:` + string(criteria.Type) + `"`)
	if !criteria.Start.IsZero() && !criteria.End.IsZero() {
		field := FieldDTStart
		if criteria.Type == TypeToDo {
			field = FieldDue
		}
		fmt.Fprintf(&b, " AND %s:[%s TO %s]", field,
			criteria.Start.UTC().Format(solr.DateFormat), criteria.End.UTC().Format(solr.DateFormat))
	}
	return b.String()
}

func (s *EmbeddedSearchStore) SearchByDate(ctx context.Context, criteria SearchCriteria) ([]*CalendarWrapper, error) {
	q := s.QueryForCriteria(criteria)
	res, err := s.searcher.Search(ctx, search.Query{Q: q, Rows: search.MaxRows})
	if err != nil {
		return nil, fmt.Errorf("failed to search calendars: %w", err)
	}
	if len(res.Docs) >= search.MaxRows {
		s.logger.Warn("calendar search at page size limit", "query", q)
	}
	matches := make([]*CalendarWrapper, 0, len(res.Docs))
	for _, doc := range res.Docs {
		path := doc.First(search.FieldPath)
		content, err := s.repo.Get(ctx, path)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if w := WrapperFromContent(content, s.logger); w != nil {
			matches = append(matches, w)
		}
	}
	return ProcessResults(matches, criteria), nil
}

func (s *EmbeddedSearchStore) HasOverdueTasks(ctx context.Context) (bool, error) {
	q := s.baseQuery + ` AND ` + FieldDue + `:[* TO NOW] AND -content:"STATUS:` + StatusCompleted + `"`
	res, err := s.searcher.Search(ctx, search.Query{Q: q, Rows: 0})
	if err != nil {
		return false, fmt.Errorf("failed to search overdue tasks: %w", err)
	}
	return res.NumFound > 0, nil
}
