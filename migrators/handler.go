package migrators

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ets-berkeley-edu/myberkeley/server/auth"
)

// Handler exposes the migrators to the administrator.
type Handler struct {
	runner   *Runner
	files    *ForcedFileMigrator
	missing  *MissingContentMigrator
	pubspace *PubspaceMigrator
	logger   *slog.Logger
}

func NewHandler(runner *Runner, files *ForcedFileMigrator, missing *MissingContentMigrator, pubspace *PubspaceMigrator, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, files: files, missing: missing, pubspace: pubspace, logger: logger}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/system/myberkeley/fileMigrator", h.requireAdmin, h.FileMigrator)
	r.GET("/system/myberkeley/missingContent", h.requireAdmin, h.MissingContent)
	r.POST("/system/myberkeley/pubspaceMigrator", h.requireAdmin, h.Pubspace)
}

func (h *Handler) requireAdmin(c *gin.Context) {
	if p := auth.Current(c); !p.IsAdmin() {
		h.logger.Error("migrator called by non-admin", "user", p.ID, "path", c.Request.URL.Path)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Next()
}

// FileMigrator scans for candidates and migrates them. dryRun only counts.
func (h *Handler) FileMigrator(c *gin.Context) {
	ctx := c.Request.Context()
	dryRun, _ := strconv.ParseBool(c.Query("dryRun"))
	if _, err := h.runner.Run(ctx, "a:", h.files); err != nil {
		h.logger.Error("failed to scan for file candidates", "error", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	count, err := h.files.MigrateCandidates(ctx, dryRun)
	if err != nil {
		h.logger.Error("failed to migrate files", "error", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"candidateCount": len(h.files.Candidates()),
		"migratedCount":  count,
	})
}

// MissingContent scans the repository and reports orphaned rows. Pass
// scan=false to report the last run only.
func (h *Handler) MissingContent(c *gin.Context) {
	if scan, err := strconv.ParseBool(c.DefaultQuery("scan", "true")); err != nil || scan {
		if _, err := h.runner.Run(c.Request.Context(), "", h.missing); err != nil {
			h.logger.Error("failed to scan for missing content", "error", err)
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, h.missing.Report())
}

func (h *Handler) Pubspace(c *gin.Context) {
	stats, err := h.pubspace.Migrate(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to migrate pubspaces", "error", err)
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}
