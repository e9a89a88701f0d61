package notification

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
)

// PropUserNotificationPath is the search template property naming the
// caller's notification store.
const PropUserNotificationPath = "_userNotificationPath"

// Indexed fields.
const (
	FieldMessageStore = "messagestore"
	FieldMessageBox   = "messagebox"
	FieldSendState    = "sendState"
	FieldCategory     = "category"
)

// SearchProperties returns the template properties for userID's searches.
func SearchProperties(userID string) map[string]string {
	return map[string]string{PropUserNotificationPath: StorePath(userID)}
}

// StoreQuery returns the index query listing the notifications in a user's
// store, optionally restricted to box.
func StoreQuery(props map[string]string, box MessageBox) string {
	q := "resourceType:" + search.EscapeQuery(ResourceType) +
		" AND " + FieldMessageStore + ":" + search.EscapeQuery(props[PropUserNotificationPath])
	if box != "" {
		q += " AND " + FieldMessageBox + ":" + string(box)
	}
	return q
}

// IndexingHandler indexes notification nodes.
type IndexingHandler struct{}

var _ search.IndexingHandler = IndexingHandler{}

func (IndexingHandler) Documents(_ context.Context, c *repository.Content) ([]search.Document, error) {
	return []search.Document{{
		search.FieldID:    c.Path,
		FieldMessageStore: c.String(PropMessageStore),
		FieldMessageBox:   c.String(PropMessageBox),
		FieldSendState:    c.String(PropSendState),
		FieldCategory:     c.String(PropCategory),
	}}, nil
}

func (IndexingHandler) DeleteQueries(path string) []string {
	return search.DeleteByID(path)
}

// WriteResult renders a notification node for the portal. Properties holding
// JSON objects or arrays are expanded, and user paths are written in their
// URL form.
func WriteResult(c *repository.Content) map[string]any {
	out := make(map[string]any, len(c.Properties)+2)
	out["jcr:path"] = repository.ToURLPath(c.Path)
	out["jcr:name"] = c.Name()
	for name, value := range c.Properties {
		if name == "_path" {
			continue
		}
		switch v := value.(type) {
		case []string:
			values := make([]string, len(v))
			for i, s := range v {
				values[i] = userPath(name, s)
			}
			out[name] = values
		case string:
			out[name] = unpack(name, v)
		default:
			out[name] = v
		}
	}
	return out
}

func unpack(name, s string) any {
	if p := userPath(name, s); p != s {
		return p
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}

func userPath(name, value string) string {
	switch name {
	case "jcr:path", "path", "userProfilePath":
		return repository.ToURLPath(value)
	}
	return value
}
