// memory based repository for tests and single-node development
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Store implements repository.Repository using in-memory maps
type Store struct {
	repository.Notifier

	mu            sync.RWMutex
	content       map[string]*repository.Content              // key: path
	acls          map[string][]repository.AccessControlEntry  // key: path
	authorizables map[string]*repository.Authorizable         // key: id
}

// New creates a new in-memory repository
func New() *Store {
	return &Store{
		content:       make(map[string]*repository.Content),
		acls:          make(map[string][]repository.AccessControlEntry),
		authorizables: make(map[string]*repository.Authorizable),
	}
}

func (s *Store) Close() error { return nil }

// Content operations

func (s *Store) Get(_ context.Context, path string) (*repository.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.content[path]
	if !ok {
		return nil, repository.NotFound("get", path)
	}
	return c.Clone(), nil
}

func (s *Store) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.content[path]
	return ok, nil
}

func (s *Store) Update(_ context.Context, content *repository.Content) error {
	if content == nil || content.Path == "" {
		return &repository.Error{Op: "update", Err: repository.ErrInvalidInput}
	}
	s.mu.Lock()
	_, existed := s.content[content.Path]
	s.content[content.Path] = content.Clone()
	s.mu.Unlock()

	ev := repository.Event{Type: repository.EventAdded, Path: content.Path, ResourceType: content.ResourceType()}
	if existed {
		ev.Type = repository.EventUpdated
	}
	s.Publish(ev)
	return nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	c, ok := s.content[path]
	if !ok {
		s.mu.Unlock()
		return repository.NotFound("delete", path)
	}
	delete(s.content, path)
	s.mu.Unlock()

	s.Publish(repository.Event{Type: repository.EventRemoved, Path: path, ResourceType: c.ResourceType()})
	return nil
}

func (s *Store) ListChildren(_ context.Context, path string) ([]*repository.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.Content
	for p, c := range s.content {
		if repository.IsChild(path, p) {
			out = append(out, c.Clone())
		}
	}
	sortByPath(out)
	return out, nil
}

func (s *Store) Find(_ context.Context, props map[string]any, limit int) ([]*repository.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.Content
	for _, c := range s.content {
		if c.Matches(props) {
			out = append(out, c.Clone())
		}
	}
	sortByPath(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Walk(ctx context.Context, prefix string, fn func(*repository.Content) error) error {
	s.mu.RLock()
	var matched []*repository.Content
	for p, c := range s.content {
		if strings.HasPrefix(p, prefix) {
			matched = append(matched, c.Clone())
		}
	}
	s.mu.RUnlock()

	sortByPath(matched)
	for _, c := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func sortByPath(cs []*repository.Content) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Path < cs[j].Path })
}

// Access control operations

func (s *Store) SetACL(_ context.Context, path string, aces []repository.AccessControlEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acls[path] = repository.MergeACL(s.acls[path], aces)
	return nil
}

func (s *Store) GetACL(_ context.Context, path string) ([]repository.AccessControlEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]repository.AccessControlEntry(nil), s.acls[path]...), nil
}

// Authorizable operations

func (s *Store) FindAuthorizable(_ context.Context, id string) (*repository.Authorizable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.authorizables[id]
	if !ok {
		return nil, repository.NotFound("find authorizable", id)
	}
	return a.Clone(), nil
}

func (s *Store) CreateUser(_ context.Context, id, password string, props map[string]any) error {
	hash, err := repository.HashPassword(password)
	if err != nil {
		return err
	}
	return s.create(&repository.Authorizable{ID: id, PasswordHash: hash, Properties: props})
}

func (s *Store) CreateGroup(_ context.Context, id string, props map[string]any) error {
	return s.create(&repository.Authorizable{ID: id, Group: true, Properties: props})
}

func (s *Store) create(a *repository.Authorizable) error {
	if a.ID == "" {
		return &repository.Error{Op: "create authorizable", Err: repository.ErrInvalidInput}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorizables[a.ID]; ok {
		return repository.Exists("create authorizable", a.ID)
	}
	s.authorizables[a.ID] = a.Clone()
	return nil
}

func (s *Store) UpdateAuthorizable(_ context.Context, a *repository.Authorizable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorizables[a.ID]; !ok {
		return repository.NotFound("update authorizable", a.ID)
	}
	s.authorizables[a.ID] = a.Clone()
	return nil
}

func (s *Store) ChangePassword(_ context.Context, id, password string) error {
	hash, err := repository.HashPassword(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authorizables[id]
	if !ok || a.Group {
		return repository.NotFound("change password", id)
	}
	a.PasswordHash = hash
	return nil
}

func (s *Store) CheckPassword(_ context.Context, id, password string) (bool, error) {
	s.mu.RLock()
	a, ok := s.authorizables[id]
	s.mu.RUnlock()
	if !ok || a.Group {
		return false, nil
	}
	return repository.VerifyPassword(a.PasswordHash, password), nil
}

func (s *Store) AddMembers(_ context.Context, groupID string, memberIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.authorizables[groupID]
	if !ok || !g.Group {
		return repository.NotFound("add members", groupID)
	}
	for _, id := range memberIDs {
		if !g.HasMember(id) {
			g.Members = append(g.Members, id)
		}
	}
	return nil
}

var _ repository.Repository = (*Store)(nil)
