package notice

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ets-berkeley-edu/myberkeley/internal/isodate"
	"github.com/ets-berkeley-edu/myberkeley/internal/queue"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

var dateProps = []string{PropSendDate, PropDueDate, PropEventDate}

// Handler creates notices.
type Handler struct {
	repo    repository.Repository
	pending *queue.Queue[PendingMessage]
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(repo repository.Repository, pending *queue.Queue[PendingMessage], logger *slog.Logger) *Handler {
	return &Handler{repo: repo, pending: pending, logger: logger, now: time.Now}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/system/myberkeley/notices/:userId", h.Create)
}

// Create stores a notice posted as form parameters in the caller's message
// store. Notices posted to the queue wait for their send date; anything else
// is routed right away.
func (h *Handler) Create(c *gin.Context) {
	principal := auth.Current(c)
	userID := c.Param("userId")
	if principal.IsAnonymous() {
		c.Status(http.StatusUnauthorized)
		return
	}
	if principal.ID != userID && !principal.IsAdmin() {
		c.Status(http.StatusForbidden)
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	form := c.Request.PostForm
	if len(form[PropTo]) == 0 {
		c.String(http.StatusBadRequest, "The "+PropTo+" parameter has to be specified.")
		return
	}

	id := uuid.NewString()
	props := map[string]any{}
	for key, values := range form {
		// Sling operation parameters
		if strings.HasPrefix(key, ":") || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			props[key] = values[0]
		} else {
			props[key] = values
		}
	}
	for _, key := range dateProps {
		v, ok := props[key].(string)
		if !ok || v == "" {
			continue
		}
		t, err := ParseDate(v)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		props[key] = isodate.Format(t)
	}

	box := BoxOutbox
	if props[PropMessageBox] == BoxQueue {
		box = BoxQueue
	}
	props[repository.PropResourceType] = ResourceType
	props[PropType] = TypeNotice
	props[PropID] = id
	props[PropFrom] = userID
	props[PropRead] = true
	props[PropMessageBox] = box
	props[PropSendState] = StatePending
	props[PropCreated] = isodate.Format(h.now())

	ctx := c.Request.Context()
	if err := EnsureStore(ctx, h.repo, userID); err != nil {
		h.logger.Error("failed to create message store", "user", userID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	notice := repository.NewContent(MessagePath(userID, id), props)
	if err := h.repo.Update(ctx, notice); err != nil {
		h.logger.Error("failed to save notice", "path", notice.Path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if box == BoxOutbox {
		if err := h.sendNow(ctx, notice, userID); err != nil {
			h.logger.Error("failed to send notice", "path", notice.Path, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
	}
	h.logger.Debug("created notice", "path", notice.Path, "box", box)
	c.JSON(http.StatusOK, gin.H{
		"id":      id,
		"path":    repository.ToURLPath(notice.Path),
		"message": notice.Properties,
	})
}

func (h *Handler) sendNow(ctx context.Context, notice *repository.Content, userID string) error {
	notice.SetProperty(PropSendState, StateNotified)
	if err := h.repo.Update(ctx, notice); err != nil {
		return err
	}
	return h.pending.Publish(ctx, PendingMessage{Path: notice.Path, User: userID})
}
