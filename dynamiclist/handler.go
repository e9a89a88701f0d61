package dynamiclist

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

const defaultItems = 10

// Handler serves list counts, stored lists, demographic updates and the
// administrator's user report.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/system/myberkeley/dynamiclists/count", h.Count)
	r.POST("/system/myberkeley/dynamiclists/count", h.Count)
	r.GET("/system/myberkeley/dynamiclists/lists", h.Lists)
	r.POST("/system/myberkeley/dynamiclists/demographic", h.SetDemographic)
	r.GET("/system/myberkeley/userIds", h.UserIDs)
}

// statusFor maps service errors to response codes.
func statusFor(err error) int {
	var accessErr *AccessControlError
	var criteriaErr *CriteriaError
	switch {
	case errors.As(err, &accessErr):
		return http.StatusForbidden
	case errors.As(err, &criteriaErr):
		return http.StatusBadRequest
	case repository.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, search.ErrNoIndex):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Count returns the number of users matching criteria within a context. The
// ids themselves are never returned.
func (h *Handler) Count(c *gin.Context) {
	if auth.Current(c).IsAnonymous() {
		c.String(http.StatusUnauthorized, "Anonymous users can't query dynamic lists.")
		return
	}
	name := c.Request.FormValue("context")
	criteria := c.Request.FormValue("criteria")
	if name == "" || criteria == "" {
		c.String(http.StatusBadRequest, "The context and criteria parameters are required")
		return
	}
	ctx := c.Request.Context()
	dlc, err := h.service.LoadContext(ctx, name)
	if err != nil {
		h.logger.Warn("failed to find dynamic list context", "context", name, "error", err)
		c.String(statusFor(err), "Failed to find Dynamic List Context.")
		return
	}
	ids, err := h.service.UserIDsForCriteria(ctx, dlc, criteria)
	if err != nil {
		h.logger.Warn("failed to resolve criteria", "context", name, "criteria", criteria, "error", err)
		c.String(statusFor(err), err.Error())
		return
	}
	h.logger.Info("resolved dynamic list", "context", name, "criteria", criteria, "count", len(ids))
	c.JSON(http.StatusOK, gin.H{"count": len(ids)})
}

// Lists writes a page of the lists in a store, or a single list, each with
// its current number of users.
func (h *Handler) Lists(c *gin.Context) {
	principal := auth.Current(c)
	if principal.IsAnonymous() {
		c.String(http.StatusUnauthorized, "Anonymous users can't read dynamic lists.")
		return
	}
	path := repository.FromURLPath(c.Query("path"))
	if path == "" {
		c.String(http.StatusBadRequest, "Missing path parameter")
		return
	}
	page := intParam(c, "page", 0)
	items := intParam(c, "items", defaultItems)
	if items <= 0 {
		items = defaultItems
	}

	ctx := c.Request.Context()
	node, err := h.service.repo.Get(ctx, path)
	if err != nil {
		c.String(statusFor(err), err.Error())
		return
	}
	acl, err := h.service.repo.GetACL(ctx, path)
	if err != nil {
		h.logger.Error("failed to read acl", "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if !repository.Allowed(acl, principal.ID, repository.PrivRead) {
		c.Status(http.StatusForbidden)
		return
	}

	if node.ResourceType() != StoreResourceType {
		out, err := h.listJSON(c, node)
		if err != nil {
			h.logger.Error("failed to resolve list", "path", node.Path, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, out)
		return
	}

	children, err := h.service.repo.ListChildren(ctx, path)
	if err != nil {
		h.logger.Error("failed to list dynamic lists", "path", path, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	var lists []*repository.Content
	for _, child := range children {
		if child.ResourceType() == ListResourceType {
			lists = append(lists, child)
		}
	}
	out := gin.H{"total": len(lists)}
	start := page * items
	for i := start; i < len(lists) && i < start+items; i++ {
		list, err := h.listJSON(c, lists[i])
		if err != nil {
			h.logger.Error("failed to resolve list", "path", lists[i].Path, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		out[lists[i].Name()] = list
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) listJSON(c *gin.Context, list *repository.Content) (map[string]any, error) {
	ids, err := h.service.UserIDsForNode(c.Request.Context(), list)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(list.Properties)+1)
	for k, v := range list.Properties {
		out[k] = v
	}
	out["numusers"] = len(ids)
	return out, nil
}

func intParam(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

// SetDemographic replaces the demographic values of the caller, or of the
// user named by userId when the caller is the administrator.
func (h *Handler) SetDemographic(c *gin.Context) {
	principal := auth.Current(c)
	if principal.IsAnonymous() {
		c.Status(http.StatusUnauthorized)
		return
	}
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	userID := principal.ID
	if other := c.Request.PostForm.Get("userId"); other != "" && other != userID {
		if !principal.IsAdmin() {
			c.Status(http.StatusForbidden)
			return
		}
		userID = other
	}

	var demographics []string
	if _, clear := c.Request.PostForm[PropDemographics+"@Delete"]; !clear {
		values, ok := c.Request.PostForm[PropDemographics]
		if !ok {
			c.String(http.StatusBadRequest, "The "+PropDemographics+" parameter must not be null")
			return
		}
		demographics = uniqueStrings(values)
	}

	if err := h.service.SetDemographics(c.Request.Context(), userID, demographics); err != nil {
		h.logger.Error("failed to set demographics", "user", userID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// UserIDs reports participants, nonparticipants and dropped users.
func (h *Handler) UserIDs(c *gin.Context) {
	principal := auth.Current(c)
	if !principal.IsAdmin() {
		h.logger.Error("user id report requested by non-admin", "user", principal.ID)
		c.Status(http.StatusInternalServerError)
		return
	}
	status, err := h.service.UserStatuses(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to build user id report", "error", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, status)
}
