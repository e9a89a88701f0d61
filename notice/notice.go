// Package notice carries the legacy notice messages: advisors queue notices in
// their message store, a polling sender releases them on their send date, and
// the router copies them into each recipient's inbox and hands email copies to
// the outgoing email listener.
package notice

import (
	"context"
	"fmt"
	"time"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	// ResourceType marks message nodes.
	ResourceType = "sakai/message"
	// StoreResourceType marks a user's message store.
	StoreResourceType = "sakai/messagestore"
	// TypeNotice is the sakai:type of a notice.
	TypeNotice = "notice"

	storeName = "message"
)

// Message properties.
const (
	PropID                    = "sakai:id"
	PropType                  = "sakai:type"
	PropTo                    = "sakai:to"
	PropFrom                  = "sakai:from"
	PropSubject               = "sakai:subject"
	PropBody                  = "sakai:body"
	PropRead                  = "sakai:read"
	PropMessageBox            = "sakai:messagebox"
	PropSendState             = "sakai:sendstate"
	PropSendDate              = "sakai:sendDate"
	PropDueDate               = "sakai:dueDate"
	PropEventDate             = "sakai:eventDate"
	PropRequired              = "sakai:required"
	PropCategory              = "sakai:category"
	PropTaskState             = "sakai:taskState"
	PropCreated               = "sakai:created"
	PropMessageError          = "sakai:messageError"
	PropRetryCount            = "sakai:retrycount"
	PropAttachmentDescription = "sakai:attachmentDescription"
	PropAttachmentContent     = "content"
	PropAttachmentType        = "contentType"
)

// Message boxes.
const (
	BoxInbox   = "inbox"
	BoxOutbox  = "outbox"
	BoxSent    = "sent"
	BoxQueue   = "sakai:queue"
	BoxArchive = "sakai:archive"
	BoxDrafts  = "sakai:drafts"
)

// Send states.
const (
	StateNone     = "none"
	StatePending  = "pending"
	StateNotified = "notified"
	StateFailed   = "failed"
)

// StorePath returns the path of a user's message store.
func StorePath(userID string) string {
	return repository.HomePath(userID) + "/" + storeName
}

// MessagePath returns the path of message id in a user's store.
func MessagePath(userID, id string) string {
	return StorePath(userID) + "/" + id
}

// dateLayouts are the forms accepted for notice dates, most specific first.
var dateLayouts = []string{
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
}

// ParseDate reads a date in any of the layouts notices are posted with.
// Values without a zone are taken as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// EnsureStore creates userID's message store, readable only by the owner.
func EnsureStore(ctx context.Context, repo repository.Repository, userID string) error {
	path := StorePath(userID)
	exists, err := repo.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to check message store %s: %w", path, err)
	}
	if exists {
		return nil
	}
	if err := repo.Update(ctx, repository.NewContent(path, map[string]any{
		repository.PropResourceType: StoreResourceType,
	})); err != nil {
		return fmt.Errorf("failed to create message store %s: %w", path, err)
	}
	return repo.SetACL(ctx, path, []repository.AccessControlEntry{
		repository.Deny(repository.Anonymous, repository.PrivAll),
		repository.Deny(repository.Everyone, repository.PrivAll),
		repository.Grant(userID, repository.PrivAll),
	})
}

// PendingMessage announces a message that is ready to be routed.
type PendingMessage struct {
	Path string
	User string
}

// EmailMessage asks the outgoing email listener to mail the node at NodePath.
// Recipients is a []string or a comma separated string of user ids or
// addresses.
type EmailMessage struct {
	NodePath   string
	Recipients any
}
