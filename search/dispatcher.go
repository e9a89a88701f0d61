package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Dispatcher listens to repository events and keeps the index in step with the
// content of the resource types it has handlers for.
type Dispatcher struct {
	repo     repository.ContentManager
	writer   Writer
	logger   *slog.Logger
	events   chan repository.Event
	mu       sync.RWMutex
	handlers map[string]IndexingHandler
}

// NewDispatcher creates a dispatcher. Call Attach to start receiving events
// and Run to process them.
func NewDispatcher(repo repository.ContentManager, writer Writer, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Dispatcher{
		repo:     repo,
		writer:   writer,
		logger:   logger,
		events:   make(chan repository.Event, 1024),
		handlers: make(map[string]IndexingHandler),
	}, nil
}

// AddHandler registers h for nodes of resourceType.
func (d *Dispatcher) AddHandler(resourceType string, h IndexingHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[resourceType] = h
}

// RemoveHandler unregisters the handler for resourceType.
func (d *Dispatcher) RemoveHandler(resourceType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, resourceType)
}

func (d *Dispatcher) handler(resourceType string) (IndexingHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[resourceType]
	return h, ok
}

// Attach subscribes the dispatcher to repository events. Events are queued and
// dropped with a warning when the queue is full.
func (d *Dispatcher) Attach(repo interface{ Subscribe(func(repository.Event)) }) {
	repo.Subscribe(func(ev repository.Event) {
		if _, ok := d.handler(ev.ResourceType); !ok {
			return
		}
		select {
		case d.events <- ev:
		default:
			d.logger.Warn("index queue full, dropping event", "path", ev.Path, "type", ev.Type)
		}
	})
}

// Run processes queued events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.events:
			if err := d.Handle(ctx, ev); err != nil {
				d.logger.Error("failed to index", "path", ev.Path, "error", err)
			}
		}
	}
}

// Handle indexes or removes the node named by ev.
func (d *Dispatcher) Handle(ctx context.Context, ev repository.Event) error {
	h, ok := d.handler(ev.ResourceType)
	if !ok {
		return nil
	}

	if ev.Type == repository.EventRemoved {
		queries := h.DeleteQueries(ev.Path)
		d.logger.Debug("removing from index", "path", ev.Path, "queries", queries)
		if len(queries) == 0 {
			return nil
		}
		return d.writer.DeleteByQuery(ctx, queries...)
	}

	content, err := d.repo.Get(ctx, ev.Path)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load %s for indexing: %w", ev.Path, err)
	}
	docs, err := h.Documents(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to build documents for %s: %w", ev.Path, err)
	}
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if _, ok := doc[FieldID]; !ok {
			doc[FieldID] = content.Path
		}
		if _, ok := doc[FieldPath]; !ok {
			doc[FieldPath] = content.Path
		}
		if _, ok := doc[FieldResourceType]; !ok {
			doc[FieldResourceType] = content.ResourceType()
		}
	}
	d.logger.Debug("indexing", "path", ev.Path, "documents", len(docs))
	return d.writer.Add(ctx, docs...)
}
