package caldav

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

const anonymousMessage = "Anonymous users can't use the CalDAV Proxy Service."

// ProxyHandler serves the caller's calendar as JSON and applies status
// changes posted back by the portal.
type ProxyHandler struct {
	provider Provider
	logger   *slog.Logger
}

func NewProxyHandler(provider Provider, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{provider: provider, logger: logger}
}

// Register mounts the proxy and the legacy single item endpoint.
func (h *ProxyHandler) Register(r gin.IRoutes) {
	r.GET("/system/myberkeley/caldav", h.Get)
	r.POST("/system/myberkeley/caldav", h.Post)
	r.POST("/system/myberkeley/caldavpost", h.LegacyPost)
}

// CriteriaFromRequest reads type, mode, start_date, end_date and sort. Absent
// parameters keep their defaults.
func CriteriaFromRequest(c *gin.Context) (SearchCriteria, error) {
	criteria := NewSearchCriteria()
	var err error
	if v, ok := c.GetQuery("type"); ok {
		if criteria.Type, err = ParseType(v); err != nil {
			return criteria, err
		}
	}
	if v, ok := c.GetQuery("mode"); ok {
		if criteria.Mode, err = ParseMode(v); err != nil {
			return criteria, err
		}
	}
	if v, ok := c.GetQuery("start_date"); ok {
		if criteria.Start, err = ParseDate(v); err != nil {
			return criteria, fmt.Errorf("invalid start date passed: %s", v)
		}
	}
	if v, ok := c.GetQuery("end_date"); ok {
		if criteria.End, err = ParseDate(v); err != nil {
			return criteria, fmt.Errorf("invalid end date passed: %s", v)
		}
	}
	if v, ok := c.GetQuery("sort"); ok {
		if criteria.Sort, err = ParseSort(v); err != nil {
			return criteria, err
		}
	}
	return criteria, nil
}

func (h *ProxyHandler) Get(c *gin.Context) {
	principal := auth.Current(c)
	if principal.IsAnonymous() {
		c.String(http.StatusUnauthorized, anonymousMessage)
		return
	}
	criteria, err := CriteriaFromRequest(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	conn, err := h.provider.AdminConnector(principal.ID)
	if err != nil {
		h.logger.Error("failed to create calendar connector", "user", principal.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	ctx := c.Request.Context()
	begin := time.Now()
	results, err := conn.SearchByDate(ctx, criteria)
	if err != nil {
		h.logger.Error("failed to fetch calendars", "user", principal.ID, "criteria", criteria.String(), "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	h.logger.Info("fetched calendar records", "user", principal.ID, "count", len(results), "elapsed", time.Since(begin))

	if results == nil {
		results = []*CalendarWrapper{}
	}
	body := gin.H{"results": results}
	if criteria.Type == TypeToDo {
		overdue, err := conn.HasOverdueTasks(ctx)
		if err != nil {
			h.logger.Error("failed to check overdue tasks", "user", principal.ID, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		body["hasOverdueTasks"] = overdue
	}
	c.JSON(http.StatusOK, body)
}

// calendarUpdate is one entry of the posted calendars array.
type calendarUpdate struct {
	URI         string `json:"uri"`
	IsArchived  bool   `json:"isArchived"`
	IsCompleted bool   `json:"isCompleted"`
	IsRead      bool   `json:"isRead"`
}

func (h *ProxyHandler) Post(c *gin.Context) {
	principal := auth.Current(c)
	if principal.IsAnonymous() {
		c.String(http.StatusUnauthorized, anonymousMessage)
		return
	}
	var updates []calendarUpdate
	if err := json.Unmarshal([]byte(c.PostForm("calendars")), &updates); err != nil {
		h.logger.Error("invalid calendars parameter", "user", principal.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	conn, err := h.provider.AdminConnector(principal.ID)
	if err != nil {
		h.logger.Error("failed to create calendar connector", "user", principal.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if err := h.updateCalendars(c, conn, updates); err != nil {
		h.logger.Error("failed to update calendars", "user", principal.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

func (h *ProxyHandler) updateCalendars(c *gin.Context, conn Connector, updates []calendarUpdate) error {
	ctx := c.Request.Context()
	now := time.Now().UTC()
	uris := make([]*CalendarURI, 0, len(updates))
	for _, u := range updates {
		uris = append(uris, &CalendarURI{URI: u.URI, Etag: now})
	}
	wrappers, err := conn.GetCalendars(ctx, uris)
	if err != nil {
		return err
	}
	byURI := make(map[string]*CalendarWrapper, len(wrappers))
	for _, w := range wrappers {
		byURI[w.URI().URI] = w
	}

	for _, u := range updates {
		w, ok := byURI[u.URI]
		if !ok {
			h.logger.Warn("calendar not found for update", "uri", u.URI)
			continue
		}
		w.ToggleCategory(CategoryArchived, u.IsArchived)
		w.ToggleCategory(CategoryRead, u.IsRead)
		w.SetCompleted(u.IsCompleted)
		if _, err := conn.ModifyCalendar(ctx, w.URI(), w.Calendar()); err != nil {
			return err
		}
	}
	return nil
}

// LegacyPost applies isArchived and isCompleted to the single item named by uri.
func (h *ProxyHandler) LegacyPost(c *gin.Context) {
	principal := auth.Current(c)
	if principal.IsAnonymous() {
		c.String(http.StatusUnauthorized, anonymousMessage)
		return
	}
	uri := c.PostForm("uri")
	if uri == "" {
		c.String(http.StatusBadRequest, "Missing uri parameter")
		return
	}
	conn, err := h.provider.AdminConnector(principal.ID)
	if err != nil {
		h.logger.Error("failed to create calendar connector", "user", principal.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	ctx := c.Request.Context()
	wrappers, err := conn.GetCalendars(ctx, []*CalendarURI{{URI: uri, Etag: time.Now().UTC()}})
	if err != nil || len(wrappers) == 0 {
		h.logger.Error("failed to fetch calendar", "uri", uri, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	w := wrappers[0]
	w.ToggleCategory(CategoryArchived, c.PostForm("isArchived") == "true")
	if c.PostForm("isCompleted") == "true" {
		w.SetCompleted(true)
	}
	if _, err := conn.ModifyCalendar(ctx, w.URI(), w.Calendar()); err != nil {
		h.logger.Error("failed to modify calendar", "uri", uri, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}
