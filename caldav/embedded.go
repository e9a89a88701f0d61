package caldav

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Repository layout of the embedded calendar store.
const (
	ComponentResourceType = "myberkeley/calcomponent"
	StoreName             = "_myberkeley_calstore"
	StoreResourceType     = "myberkeley/calstore"
	PropCalendarWrapper   = "calendarWrapper"
)

// EmbeddedStore is a Connector keeping calendar objects in the content
// repository under the user's home.
type EmbeddedStore struct {
	userID       string
	repo         repository.Repository
	storePath    string
	storeURLPath string
	logger       *slog.Logger
}

var _ Connector = (*EmbeddedStore)(nil)

// NewEmbeddedStore creates the connector for userID.
func NewEmbeddedStore(userID string, repo repository.Repository, logger *slog.Logger) *EmbeddedStore {
	return &EmbeddedStore{
		userID:       userID,
		repo:         repo,
		storePath:    StorePath(userID),
		storeURLPath: repository.ToURLPath(StorePath(userID)),
		logger:       logger.With("user", userID),
	}
}

// StorePath is the repository path of a user's calendar store.
func StorePath(userID string) string {
	return repository.HomePath(userID) + "/" + StoreName
}

var homePathPattern = regexp.MustCompile(`~(.+)\.ics`)

// StoragePath maps an object URI such as /~bob/_myberkeley_calstore/x.ics to
// its repository path a:bob/_myberkeley_calstore/x.
func StoragePath(uri string) (string, error) {
	p := uri
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		p = u.Path
	}
	m := homePathPattern.FindStringSubmatch(p)
	if m == nil {
		return "", fmt.Errorf("uri %q is not in a calendar store: %w", uri, repository.ErrInvalidInput)
	}
	return repository.HomePath(m[1]), nil
}

// objectPath resolves uri to a component of this user's own store.
func (s *EmbeddedStore) objectPath(uri string) (string, error) {
	path, err := StoragePath(uri)
	if err != nil {
		return "", err
	}
	name, ok := strings.CutPrefix(path, s.storePath+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("uri %q is outside the calendar store of %s: %w", uri, s.userID, repository.ErrAccessDenied)
	}
	return path, nil
}

func (s *EmbeddedStore) PutCalendar(ctx context.Context, cal *ical.Calendar) (*CalendarURI, error) {
	return s.ModifyCalendar(ctx, nil, cal)
}

// ModifyCalendar stores cal. Creating fails if the object exists, and
// modifying fails if it does not.
func (s *EmbeddedStore) ModifyCalendar(ctx context.Context, uri *CalendarURI, cal *ical.Calendar) (*CalendarURI, error) {
	isCreate := uri == nil
	if err := s.ensureStore(ctx); err != nil {
		return nil, err
	}
	if isCreate {
		uri = &CalendarURI{URI: s.storeURLPath + "/" + uuid.NewString() + ".ics", Etag: time.Now().UTC()}
	}
	path, err := s.objectPath(uri.URI)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	switch {
	case !exists && !isCreate:
		return nil, repository.NotFound("modify calendar", path)
	case exists && isCreate:
		return nil, repository.Exists("create calendar", path)
	}

	wrapper, err := NewCalendarWrapper(cal, uri.URI, uri.Etag)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(wrapper.ToJSON())
	if err != nil {
		return nil, fmt.Errorf("failed to encode calendar wrapper: %w", err)
	}
	s.logger.Info("writing calendar", "path", path)
	content := repository.NewContent(path, map[string]any{
		repository.PropResourceType: ComponentResourceType,
		PropCalendarWrapper:         string(data),
	})
	if err := s.repo.Update(ctx, content); err != nil {
		return nil, fmt.Errorf("failed to write calendar %s: %w", path, err)
	}
	return uri, nil
}

func (s *EmbeddedStore) DeleteCalendar(ctx context.Context, uri *CalendarURI) error {
	path, err := s.objectPath(uri.URI)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, path)
}

func (s *EmbeddedStore) GetCalendars(ctx context.Context, uris []*CalendarURI) ([]*CalendarWrapper, error) {
	wrappers := make([]*CalendarWrapper, 0, len(uris))
	for _, uri := range uris {
		path, err := s.objectPath(uri.URI)
		if err != nil {
			s.logger.Error("skipping calendar", "uri", uri.URI, "error", err)
			continue
		}
		content, err := s.repo.Get(ctx, path)
		if repository.IsNotFound(err) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to load calendar", "path", path, "error", err)
			continue
		}
		if w := WrapperFromContent(content, s.logger); w != nil {
			wrappers = append(wrappers, w)
		}
	}
	return wrappers, nil
}

func (s *EmbeddedStore) SearchByDate(ctx context.Context, criteria SearchCriteria) ([]*CalendarWrapper, error) {
	wrappers, err := s.filtered(ctx, &criteria)
	if err != nil {
		return nil, err
	}
	criteria.SortWrappers(wrappers)
	return wrappers, nil
}

// HasOverdueTasks looks for required, unarchived tasks due before now that
// are not completed.
func (s *EmbeddedStore) HasOverdueTasks(ctx context.Context) (bool, error) {
	criteria := SearchCriteria{
		Type:  TypeToDo,
		Mode:  ModeRequired,
		Sort:  SortDateAsc,
		Start: time.Unix(0, 0).UTC(),
		End:   time.Now().UTC(),
	}
	results, err := s.SearchByDate(ctx, criteria)
	if err != nil {
		return false, err
	}
	for _, w := range results {
		if !w.IsCompleted() {
			return true, nil
		}
	}
	return false, nil
}

func (s *EmbeddedStore) GetCalendarURIs(ctx context.Context) ([]*CalendarURI, error) {
	wrappers, err := s.filtered(ctx, nil)
	if err != nil {
		return nil, err
	}
	uris := make([]*CalendarURI, 0, len(wrappers))
	for _, w := range wrappers {
		uris = append(uris, w.URI())
	}
	return uris, nil
}

func (s *EmbeddedStore) EnsureCalendarStore(ctx context.Context) {
	if err := s.ensureStore(ctx); err != nil {
		s.logger.Error("failed to ensure calendar store", "path", s.storePath, "error", err)
	}
}

// ensureStore creates the store readable only by its owner.
func (s *EmbeddedStore) ensureStore(ctx context.Context) error {
	exists, err := s.repo.Exists(ctx, s.storePath)
	if err != nil || exists {
		return err
	}
	s.logger.Info("creating read-only calendar store", "path", s.storePath)
	store := repository.NewContent(s.storePath, map[string]any{repository.PropResourceType: StoreResourceType})
	if err := s.repo.Update(ctx, store); err != nil {
		return fmt.Errorf("failed to create calendar store: %w", err)
	}
	return s.repo.SetACL(ctx, s.storePath, []repository.AccessControlEntry{
		repository.Deny(repository.Anonymous, repository.PrivAll),
		repository.Deny(repository.Everyone, repository.PrivAll),
		repository.Grant(s.userID, repository.PrivRead),
	})
}

// filtered returns the stored objects matching criteria; nil matches all.
func (s *EmbeddedStore) filtered(ctx context.Context, criteria *SearchCriteria) ([]*CalendarWrapper, error) {
	exists, err := s.repo.Exists(ctx, s.storePath)
	if err != nil || !exists {
		return nil, err
	}
	children, err := s.repo.ListChildren(ctx, s.storePath)
	if err != nil {
		return nil, err
	}
	var out []*CalendarWrapper
	for _, child := range children {
		w := WrapperFromContent(child, s.logger)
		if w != nil && Match(w, criteria) {
			out = append(out, w)
		}
	}
	return out, nil
}

// WrapperFromContent decodes the calendarWrapper property of a component
// node. It returns nil for other nodes and logs decoding failures.
func WrapperFromContent(content *repository.Content, logger *slog.Logger) *CalendarWrapper {
	if content.ResourceType() != ComponentResourceType {
		return nil
	}
	raw := content.String(PropCalendarWrapper)
	if raw == "" {
		logger.Warn("no calendarWrapper found", "path", content.Path)
		return nil
	}
	w, err := ParseWrapperJSON([]byte(raw))
	if err != nil {
		logger.Error("failed to decode calendar wrapper", "path", content.Path, "error", err)
		return nil
	}
	return w
}
