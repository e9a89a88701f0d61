package notification

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ets-berkeley-edu/myberkeley/internal/isodate"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

// Handler creates and lists a user's notifications.
type Handler struct {
	repo     repository.Repository
	searcher search.Searcher
	logger   *slog.Logger
}

// NewHandler creates the handler. A nil searcher lists stores directly from
// the repository.
func NewHandler(repo repository.Repository, searcher search.Searcher, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, searcher: searcher, logger: logger}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/system/myberkeley/notifications/:userId", h.Create)
	r.GET("/system/myberkeley/notifications/:userId", h.List)
}

// authorize allows the store owner and the administrator.
func authorize(c *gin.Context) (string, bool) {
	principal := auth.Current(c)
	userID := c.Param("userId")
	if principal.IsAnonymous() {
		c.Status(http.StatusUnauthorized)
		return "", false
	}
	if principal.ID != userID && !principal.IsAdmin() {
		c.Status(http.StatusForbidden)
		return "", false
	}
	return userID, true
}

func (h *Handler) Create(c *gin.Context) {
	userID, ok := authorize(c)
	if !ok {
		return
	}
	param, ok := c.GetPostForm("notification")
	if !ok {
		c.String(http.StatusBadRequest, "The notification parameter must not be null")
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(param), &fields); err != nil {
		h.logger.Error("failed to convert notification to JSON", "error", err)
		c.String(http.StatusInternalServerError, "Got a JSONException parsing input")
		return
	}
	h.logger.Debug("notification json", "user", userID, "json", param)

	ctx := c.Request.Context()
	storePath := StorePath(userID)
	if err := h.ensureStore(c, storePath); err != nil {
		h.logger.Error("failed to create notification store", "path", storePath, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	box := BoxDrafts
	var boxName string
	if raw, ok := fields[PropMessageBox]; ok && json.Unmarshal(raw, &boxName) == nil {
		var err error
		if box, err = ParseMessageBox(boxName); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
	}

	var id string
	if box == BoxDrafts || box == BoxTrash {
		nid := IDFromJSON(fields)
		content, err := h.notificationNode(c, storePath+"/"+nid.String())
		if err != nil {
			h.logger.Error("failed to create draft", "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		for key, raw := range fields {
			content.SetProperty(key, draftValue(raw))
		}
		content.SetProperty(PropID, nid.String())
		content.SetProperty(PropMessageStore, storePath)
		if err := h.repo.Update(ctx, content); err != nil {
			h.logger.Error("failed to save draft", "path", content.Path, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		id = nid.String()
	} else {
		n, err := FromJSON([]byte(param))
		if err != nil {
			h.logger.Error("invalid notification", "error", err)
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		content, err := h.notificationNode(c, n.Path(storePath))
		if err != nil {
			h.logger.Error("failed to create notification", "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		if err := n.ToContent(storePath, content); err != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		if err := h.repo.Update(ctx, content); err != nil {
			h.logger.Error("failed to save notification", "path", content.Path, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		h.logger.Debug("saved a notification", "path", content.Path)
		id = n.ID.String()
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// draftValue stores strings as given, with ISO8601 dates normalized, and
// anything else as its JSON text.
func draftValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := isodate.Parse(s); err == nil {
			return isodate.Format(t)
		}
		return s
	}
	return string(raw)
}

func (h *Handler) ensureStore(c *gin.Context, storePath string) error {
	ctx := c.Request.Context()
	exists, err := h.repo.Exists(ctx, storePath)
	if err != nil || exists {
		return err
	}
	h.logger.Debug("creating notification store", "path", storePath)
	err = h.repo.Update(ctx, repository.NewContent(storePath, map[string]any{
		repository.PropResourceType: StoreResourceType,
	}))
	if err != nil {
		return err
	}
	return h.repo.SetACL(ctx, storePath, []repository.AccessControlEntry{
		repository.Deny(repository.Anonymous, repository.PrivAll),
	})
}

func (h *Handler) notificationNode(c *gin.Context, path string) (*repository.Content, error) {
	ctx := c.Request.Context()
	content, err := h.repo.Get(ctx, path)
	if repository.IsNotFound(err) {
		return repository.NewContent(path, map[string]any{repository.PropResourceType: ResourceType}), nil
	}
	return content, err
}

// List returns the notifications in a user's store, optionally filtered by
// the box parameter.
func (h *Handler) List(c *gin.Context) {
	userID, ok := authorize(c)
	if !ok {
		return
	}
	var box MessageBox
	if v := c.Query("box"); v != "" {
		var err error
		if box, err = ParseMessageBox(v); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
	}

	nodes, err := h.find(c, userID, box)
	if err != nil {
		h.logger.Error("failed to list notifications", "user", userID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	results := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		results = append(results, WriteResult(node))
	}
	c.JSON(http.StatusOK, gin.H{"total": len(results), "results": results})
}

func (h *Handler) find(c *gin.Context, userID string, box MessageBox) ([]*repository.Content, error) {
	ctx := c.Request.Context()
	if h.searcher == nil {
		children, err := h.repo.ListChildren(ctx, StorePath(userID))
		if err != nil {
			return nil, err
		}
		var out []*repository.Content
		for _, child := range children {
			if child.ResourceType() != ResourceType {
				continue
			}
			if box != "" && child.String(PropMessageBox) != string(box) {
				continue
			}
			out = append(out, child)
		}
		return out, nil
	}

	res, err := h.searcher.Search(ctx, search.Query{Q: StoreQuery(SearchProperties(userID), box), Rows: search.MaxRows})
	if err != nil {
		return nil, fmt.Errorf("failed to search notifications: %w", err)
	}
	out := make([]*repository.Content, 0, len(res.Docs))
	for _, doc := range res.Docs {
		path := doc.First(search.FieldPath)
		if path == "" {
			path = doc.First(search.FieldID)
		}
		node, err := h.repo.Get(ctx, path)
		if repository.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}
