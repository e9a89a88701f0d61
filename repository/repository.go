// Package repository describes the content store the portal glue runs against.
//
// The store is a tree of Content nodes addressed by path ("a:<userid>/..." for user
// homes, "/var/..." for system nodes), an access control list per path, and a set of
// authorizables (users and groups). Implementations live in the memory and
// badgerstore subpackages.
package repository

import "context"

// ContentManager reads and writes content nodes.
type ContentManager interface {
	// Get returns a copy of the node at path or ErrNotFound.
	Get(ctx context.Context, path string) (*Content, error)
	// Exists reports whether a node is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
	// Update creates the node or replaces its properties.
	Update(ctx context.Context, content *Content) error
	// Delete removes the node at path. Children are left in place.
	Delete(ctx context.Context, path string) error
	// ListChildren returns the direct children of path ordered by path.
	ListChildren(ctx context.Context, path string) ([]*Content, error)
	// Find returns nodes whose properties equal every entry in props.
	// A limit <= 0 means no limit.
	Find(ctx context.Context, props map[string]any, limit int) ([]*Content, error)
	// Walk calls fn for every node whose path starts with prefix, ordered by path.
	// Returning an error from fn stops the walk.
	Walk(ctx context.Context, prefix string, fn func(*Content) error) error
}

// AccessControlManager stores access control entries per path.
type AccessControlManager interface {
	// SetACL merges aces into the list stored for path. An entry replaces an
	// existing entry with the same principal and grant flag.
	SetACL(ctx context.Context, path string, aces []AccessControlEntry) error
	GetACL(ctx context.Context, path string) ([]AccessControlEntry, error)
}

// AuthorizableManager stores users and groups.
type AuthorizableManager interface {
	FindAuthorizable(ctx context.Context, id string) (*Authorizable, error)
	CreateUser(ctx context.Context, id, password string, props map[string]any) error
	CreateGroup(ctx context.Context, id string, props map[string]any) error
	UpdateAuthorizable(ctx context.Context, a *Authorizable) error
	ChangePassword(ctx context.Context, id, password string) error
	CheckPassword(ctx context.Context, id, password string) (bool, error)
	AddMembers(ctx context.Context, groupID string, memberIDs ...string) error
}

// Repository is the full store used by the service.
type Repository interface {
	ContentManager
	AccessControlManager
	AuthorizableManager
	// Subscribe registers fn to be called after every content change.
	Subscribe(fn func(Event))
	Close() error
}

// EventType describes a content change.
type EventType string

const (
	EventAdded   EventType = "added"
	EventUpdated EventType = "updated"
	EventRemoved EventType = "removed"
)

// Event is published after a content change has been stored.
type Event struct {
	Type         EventType
	Path         string
	ResourceType string
}
