package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ets-berkeley-edu/myberkeley/caldav"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	RecipientLogResourceType = "myberkeley/notificationrecipientlog"
	RecipientLogName         = "recipientlog"
	PropCalendarURI          = "calendarURI"
)

// RecipientLog records which recipients already have a calendar entry for a
// notification and the id of the email sent for it.
type RecipientLog struct {
	content        *repository.Content
	Recipients     map[string]*caldav.CalendarURI
	EmailMessageID string
}

// LoadRecipientLog reads the log under notificationPath, creating a hidden
// empty log the first time.
func LoadRecipientLog(ctx context.Context, repo repository.Repository, notificationPath string) (*RecipientLog, error) {
	path := notificationPath + "/" + RecipientLogName
	content, err := repo.Get(ctx, path)
	if repository.IsNotFound(err) {
		content = repository.NewContent(path, map[string]any{repository.PropResourceType: RecipientLogResourceType})
		if err := repo.Update(ctx, content); err != nil {
			return nil, fmt.Errorf("failed to create recipient log %s: %w", path, err)
		}
		err = repo.SetACL(ctx, path, []repository.AccessControlEntry{
			repository.Deny(repository.Anonymous, repository.PrivAll),
			repository.Deny(repository.Everyone, repository.PrivAll),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to restrict recipient log %s: %w", path, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load recipient log %s: %w", path, err)
	}

	rl := &RecipientLog{
		content:        content,
		Recipients:     make(map[string]*caldav.CalendarURI),
		EmailMessageID: content.String(PropEmailMessageID),
	}
	children, err := repo.ListChildren(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipient log %s: %w", path, err)
	}
	for _, child := range children {
		var uri caldav.CalendarURI
		if err := json.Unmarshal([]byte(child.String(PropCalendarURI)), &uri); err != nil {
			continue
		}
		rl.Recipients[child.Name()] = &uri
	}
	return rl, nil
}

// Has reports whether userID already has a calendar entry.
func (l *RecipientLog) Has(userID string) bool {
	_, ok := l.Recipients[userID]
	return ok
}

// Update replaces the stored recipient entries with the current ones and
// saves the email message id.
func (l *RecipientLog) Update(ctx context.Context, repo repository.ContentManager) error {
	old, err := repo.ListChildren(ctx, l.content.Path)
	if err != nil {
		return fmt.Errorf("failed to list recipient log %s: %w", l.content.Path, err)
	}
	for _, child := range old {
		if err := repo.Delete(ctx, child.Path); err != nil && !repository.IsNotFound(err) {
			return fmt.Errorf("failed to clear recipient log entry %s: %w", child.Path, err)
		}
	}

	ids := make([]string, 0, len(l.Recipients))
	for id := range l.Recipients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		data, err := json.Marshal(l.Recipients[id])
		if err != nil {
			return fmt.Errorf("failed to encode calendar uri of %s: %w", id, err)
		}
		entry := repository.NewContent(l.content.Path+"/"+id, map[string]any{PropCalendarURI: string(data)})
		if err := repo.Update(ctx, entry); err != nil {
			return fmt.Errorf("failed to write recipient log entry %s: %w", entry.Path, err)
		}
	}

	if l.EmailMessageID != "" {
		l.content.SetProperty(PropEmailMessageID, l.EmailMessageID)
	}
	return repo.Update(ctx, l.content)
}
