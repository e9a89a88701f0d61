package provision

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/mo"

	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

const (
	ParamUserID  = "userId"
	ParamUserIDs = "userIds"

	keepOut = "YOU KIDS STAY OUT OF MY YARD!"
)

// ForeignPrincipals resolves the CAS id of a caller without an account.
type ForeignPrincipals interface {
	GetForeignPrincipal(w http.ResponseWriter, r *http.Request) mo.Option[string]
}

// UserLoader creates or refreshes accounts.
type UserLoader interface {
	LoadUser(ctx context.Context, userID string, attrs map[string]any) (ProvisionResult, error)
	InitializeParticipant(ctx context.Context, userID string) error
}

// Handler serves the account provisioning endpoints.
type Handler struct {
	users   UserLoader
	people  PersonAttributeProvider
	foreign ForeignPrincipals
	logger  *slog.Logger
}

// NewHandler builds the handler. people may be nil when no directory is
// configured; endpoints that need it then answer 503.
func NewHandler(users UserLoader, people PersonAttributeProvider, foreign ForeignPrincipals, logger *slog.Logger) *Handler {
	return &Handler{users: users, people: people, foreign: foreign, logger: logger}
}

func (h *Handler) Register(r gin.IRoutes) {
	for _, suffix := range []string{"", ".tidy"} {
		r.POST("/system/accountProvider/parameters"+suffix, h.Parameters)
		r.GET("/system/accountProvider/self"+suffix, h.SelfAttributes)
		r.POST("/system/accountProvider/self"+suffix, h.SelfProvision)
		r.GET("/system/myberkeley/personProvision"+suffix, h.PersonAttributes)
		r.POST("/system/myberkeley/personProvision"+suffix, h.PersonProvision)
		r.POST("/system/myberkeley/testPersonProvision"+suffix, h.TestPersonProvision)
	}
}

// Parameters creates a user straight from request parameters. Test and demo
// systems use it in place of the campus directory.
func (h *Handler) Parameters(c *gin.Context) {
	userID := c.PostForm(ParamUserID)
	if userID == "" {
		c.String(http.StatusBadRequest, "Missing "+ParamUserID+" parameter")
		return
	}
	if !auth.Current(c).IsAdmin() {
		c.String(http.StatusUnauthorized, "Unauthorized")
		return
	}
	result := h.load(c, userID, attributesFromForm(c))
	writeJSON(c, resultJSON(result))
}

// SelfAttributes shows a foreign principal what the directory knows about them.
func (h *Handler) SelfAttributes(c *gin.Context) {
	personID, ok := h.foreignPrincipal(c)
	if !ok || !h.requirePeople(c) {
		return
	}
	attrs, err := h.people.PersonAttributes(c.Request.Context(), personID)
	if err != nil {
		h.logger.Error("failed to look up person", "personId", personID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	h.logger.Info("self attributes", "personId", personID, "attributes", attrs)
	writeJSON(c, attrs)
}

// SelfProvision creates the account of a foreign principal. Posting here is
// also agreeing to join as a participant.
func (h *Handler) SelfProvision(c *gin.Context) {
	personID, ok := h.foreignPrincipal(c)
	if !ok || !h.requirePeople(c) {
		return
	}
	ctx := c.Request.Context()
	attrs, err := h.people.PersonAttributes(ctx, personID)
	if err != nil {
		h.logger.Error("failed to look up person", "personId", personID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	result := h.load(c, personID, attrs)
	if result.User != nil {
		if err := h.users.InitializeParticipant(ctx, personID); err != nil {
			h.logger.Error("failed to initialize participant", "userId", personID, "error", err)
		}
	}
	writeJSON(c, result.UserProperties())
}

// PersonAttributes returns directory attributes for each userIds value.
func (h *Handler) PersonAttributes(c *gin.Context) {
	ids, ok := h.adminIDs(c)
	if !ok || !h.requirePeople(c) {
		return
	}
	results := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		attrs, err := h.people.PersonAttributes(c.Request.Context(), id)
		if err != nil {
			h.logger.Error("failed to look up person", "personId", id, "error", err)
		}
		h.logger.Info("person attributes", "personId", id, "attributes", attrs)
		results = append(results, attrs)
	}
	writeJSON(c, gin.H{"results": results})
}

// PersonProvision loads each userIds value from the directory.
func (h *Handler) PersonProvision(c *gin.Context) {
	ids, ok := h.adminIDs(c)
	if !ok || !h.requirePeople(c) {
		return
	}
	results := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		attrs, err := h.people.PersonAttributes(c.Request.Context(), id)
		if err != nil {
			h.logger.Error("failed to look up person", "personId", id, "error", err)
		}
		result := ProvisionResult{State: StateError}
		if attrs != nil {
			result = h.load(c, id, attrs)
		}
		results = append(results, resultJSON(result))
	}
	writeJSON(c, gin.H{"results": results})
}

// TestPersonProvision creates a user from request parameters. An explicit
// userId is reserved to the administrator; without one the caller's foreign
// principal is provisioned.
func (h *Handler) TestPersonProvision(c *gin.Context) {
	results := []map[string]any{}
	userID := c.PostForm(ParamUserID)
	if userID != "" {
		if !auth.Current(c).IsAdmin() {
			c.String(http.StatusUnauthorized, keepOut)
			return
		}
	} else {
		userID = h.foreignID(c).OrEmpty()
	}
	if userID != "" {
		if props := h.load(c, userID, attributesFromForm(c)).UserProperties(); props != nil {
			results = append(results, props)
		}
	}
	writeJSON(c, gin.H{"results": results})
}

func (h *Handler) load(c *gin.Context, userID string, attrs map[string]any) ProvisionResult {
	result, err := h.users.LoadUser(c.Request.Context(), userID, attrs)
	if err != nil {
		h.logger.Error("failed to load user", "userId", userID, "error", err)
	}
	return result
}

func (h *Handler) foreignID(c *gin.Context) mo.Option[string] {
	if h.foreign == nil {
		return mo.None[string]()
	}
	return h.foreign.GetForeignPrincipal(c.Writer, c.Request)
}

func (h *Handler) foreignPrincipal(c *gin.Context) (string, bool) {
	id, ok := h.foreignID(c).Get()
	if !ok {
		c.String(http.StatusBadRequest, "Unknown user")
		return "", false
	}
	return id, true
}

func (h *Handler) adminIDs(c *gin.Context) ([]string, bool) {
	if !auth.Current(c).IsAdmin() {
		c.String(http.StatusUnauthorized, keepOut)
		return nil, false
	}
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return nil, false
	}
	ids := c.Request.Form[ParamUserIDs]
	if len(ids) == 0 {
		c.String(http.StatusBadRequest, "Missing "+ParamUserIDs+" parameter")
		return nil, false
	}
	return ids, true
}

func (h *Handler) requirePeople(c *gin.Context) bool {
	if h.people == nil {
		c.String(http.StatusServiceUnavailable, "No person attribute provider is configured")
		return false
	}
	return true
}

// attributesFromForm turns every parameter but userId into an attribute.
func attributesFromForm(c *gin.Context) map[string]any {
	attrs := map[string]any{}
	if err := c.Request.ParseForm(); err != nil {
		return attrs
	}
	for key, values := range c.Request.PostForm {
		if key == ParamUserID {
			continue
		}
		switch len(values) {
		case 0:
			attrs[key] = nil
		case 1:
			attrs[key] = values[0]
		default:
			attrs[key] = values
		}
	}
	return attrs
}

func resultJSON(r ProvisionResult) gin.H {
	return gin.H{
		"synchronizationState": r.State,
		"user":                 r.UserProperties(),
	}
}

// writeJSON indents the body for the .tidy selector.
func writeJSON(c *gin.Context, body any) {
	if strings.HasSuffix(c.FullPath(), ".tidy") {
		c.IndentedJSON(http.StatusOK, body)
		return
	}
	c.JSON(http.StatusOK, body)
}
