// Package badgerstore persists the repository in an embedded BadgerDB.
//
// Records are JSON encoded under one key prefix per record kind:
//
//	content/<path>   repository.Content
//	acl/<path>       []repository.AccessControlEntry
//	authz/<id>       repository.Authorizable
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	contentPrefix = "content/"
	aclPrefix     = "acl/"
	authzPrefix   = "authz/"
)

// Config holds configuration for the badger-backed repository.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool
	// SyncWrites trades write latency for durability.
	SyncWrites bool
	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration
	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true, GCInterval: 5 * time.Minute}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements repository.Repository on top of BadgerDB.
type Store struct {
	repository.Notifier

	db     *badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
}

// Open opens or creates a store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent repository")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create repository directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.Logger)
	}
	return s, nil
}

func (s *Store) runGC(interval time.Duration, logger *slog.Logger) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

// Close stops value log GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *Store) getJSON(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

func (s *Store) setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// scan decodes every content record whose key starts with contentPrefix+prefix.
func (s *Store) scan(ctx context.Context, prefix string, fn func(*repository.Content) error) error {
	var matched []*repository.Content
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(contentPrefix + prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var c repository.Content
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return fmt.Errorf("failed to decode %s: %w", it.Item().Key(), err)
			}
			matched = append(matched, repository.NewContent(c.Path, c.Properties))
		}
		return nil
	})
	if err != nil {
		return err
	}
	// callbacks run outside the read transaction so they may write
	for _, c := range matched {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Content operations

func (s *Store) Get(_ context.Context, path string) (*repository.Content, error) {
	var c repository.Content
	if err := s.getJSON(contentPrefix+path, &c); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, repository.NotFound("get", path)
		}
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return repository.NewContent(c.Path, c.Properties), nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.Get(ctx, path)
	if err == nil {
		return true, nil
	}
	if repository.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) Update(_ context.Context, content *repository.Content) error {
	if content == nil || content.Path == "" {
		return &repository.Error{Op: "update", Err: repository.ErrInvalidInput}
	}
	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(contentPrefix + content.Path))
		switch {
		case err == nil:
			existed = true
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return s.setJSON(txn, contentPrefix+content.Path, content)
	})
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", content.Path, err)
	}
	ev := repository.Event{Type: repository.EventAdded, Path: content.Path, ResourceType: content.ResourceType()}
	if existed {
		ev.Type = repository.EventUpdated
	}
	s.Publish(ev)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	c, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(contentPrefix + path))
	}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	s.Publish(repository.Event{Type: repository.EventRemoved, Path: path, ResourceType: c.ResourceType()})
	return nil
}

func (s *Store) ListChildren(ctx context.Context, path string) ([]*repository.Content, error) {
	var out []*repository.Content
	err := s.scan(ctx, strings.TrimSuffix(path, "/")+"/", func(c *repository.Content) error {
		if repository.IsChild(path, c.Path) {
			out = append(out, c)
		}
		return nil
	})
	return out, err
}

func (s *Store) Find(ctx context.Context, props map[string]any, limit int) ([]*repository.Content, error) {
	var out []*repository.Content
	errLimit := errors.New("limit reached")
	err := s.scan(ctx, "", func(c *repository.Content) error {
		if c.Matches(props) {
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				return errLimit
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, err
	}
	return out, nil
}

func (s *Store) Walk(ctx context.Context, prefix string, fn func(*repository.Content) error) error {
	return s.scan(ctx, prefix, fn)
}

// Access control operations

func (s *Store) SetACL(_ context.Context, path string, aces []repository.AccessControlEntry) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var existing []repository.AccessControlEntry
		item, err := txn.Get([]byte(aclPrefix + path))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &existing) }); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return s.setJSON(txn, aclPrefix+path, repository.MergeACL(existing, aces))
	})
}

func (s *Store) GetACL(_ context.Context, path string) ([]repository.AccessControlEntry, error) {
	var aces []repository.AccessControlEntry
	if err := s.getJSON(aclPrefix+path, &aces); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to get ACL for %s: %w", path, err)
	}
	return aces, nil
}

// Authorizable operations

func (s *Store) FindAuthorizable(_ context.Context, id string) (*repository.Authorizable, error) {
	var a repository.Authorizable
	if err := s.getJSON(authzPrefix+id, &a); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, repository.NotFound("find authorizable", id)
		}
		return nil, fmt.Errorf("failed to find authorizable %s: %w", id, err)
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
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(authzPrefix + a.ID))
		if err == nil {
			return repository.Exists("create authorizable", a.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.setJSON(txn, authzPrefix+a.ID, a)
	})
}

// modify applies fn to a stored authorizable inside one transaction.
func (s *Store) modify(op, id string, fn func(*repository.Authorizable) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(authzPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return repository.NotFound(op, id)
		}
		if err != nil {
			return err
		}
		var a repository.Authorizable
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &a) }); err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		return s.setJSON(txn, authzPrefix+id, &a)
	})
}

func (s *Store) UpdateAuthorizable(_ context.Context, a *repository.Authorizable) error {
	return s.modify("update authorizable", a.ID, func(stored *repository.Authorizable) error {
		*stored = *a.Clone()
		return nil
	})
}

func (s *Store) ChangePassword(_ context.Context, id, password string) error {
	hash, err := repository.HashPassword(password)
	if err != nil {
		return err
	}
	return s.modify("change password", id, func(a *repository.Authorizable) error {
		if a.Group {
			return repository.NotFound("change password", id)
		}
		a.PasswordHash = hash
		return nil
	})
}

func (s *Store) CheckPassword(ctx context.Context, id, password string) (bool, error) {
	a, err := s.FindAuthorizable(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if a.Group {
		return false, nil
	}
	return repository.VerifyPassword(a.PasswordHash, password), nil
}

func (s *Store) AddMembers(_ context.Context, groupID string, memberIDs ...string) error {
	return s.modify("add members", groupID, func(g *repository.Authorizable) error {
		if !g.Group {
			return repository.NotFound("add members", groupID)
		}
		for _, id := range memberIDs {
			if !g.HasMember(id) {
				g.Members = append(g.Members, id)
			}
		}
		return nil
	})
}

var _ repository.Repository = (*Store)(nil)
