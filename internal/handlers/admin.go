package handlers

import (
	"fmt"
	"strings"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/middleware"
	"wikits/internal/models"
	"wikits/internal/services"
	"wikits/internal/utils"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	admin      *services.AdminService
	users      *services.UserService
	settings   *services.SettingsService
	activity   *services.ActivityService
	ads        *services.AdsService
	reconciler *services.MetricsReconciler
	export     *services.ExportService
	log        *logger.Logger
}

func NewAdminHandler(
	admin *services.AdminService,
	users *services.UserService,
	settings *services.SettingsService,
	activity *services.ActivityService,
	ads *services.AdsService,
	reconciler *services.MetricsReconciler,
	export *services.ExportService,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		admin:      admin,
		users:      users,
		settings:   settings,
		activity:   activity,
		ads:        ads,
		reconciler: reconciler,
		export:     export,
		log:        log.With("handler", "admin"),
	}
}

func (h *AdminHandler) Stats(c *gin.Context) {
	st, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

// Status 数据库异常时返回 Degraded 而不是 5xx
func (h *AdminHandler) Status(c *gin.Context) {
	ok(c, h.admin.Status(c.Request.Context()))
}

func (h *AdminHandler) Users(c *gin.Context) {
	ctx := c.Request.Context()
	page, err := h.users.List(ctx, c.Query("q"), pageOf(ctx, c, h.settings))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, page)
}

func (h *AdminHandler) Settings(c *gin.Context) {
	all, err := h.settings.All(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, all)
}

type settingRequest struct {
	Value *string `json:"value" binding:"required"`
}

// UpdateSetting PUT /api/admin/settings/:key
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	var req settingRequest
	if !bindJSON(c, &req) {
		return
	}
	key := c.Param("key")
	row, err := h.settings.Set(c.Request.Context(), key, *req.Value)
	if err != nil {
		fail(c, err)
		return
	}
	actor, _ := middleware.CurrentActor(c)
	h.log.Info("Setting updated", "key", key, "admin_id", actor.ID)
	ok(c, row)
}

// Activity 读取失败时返回空列表
func (h *AdminHandler) Activity(c *gin.Context) {
	f := services.ActivityFilter{
		Type:      models.EventType(strings.ToUpper(c.Query("type"))),
		UserID:    c.Query("userId"),
		VisitorID: c.Query("visitorId"),
		Limit:     utils.StringToInt(c.Query("limit")),
	}
	if since, err := parseSince(c.Query("since")); err == nil {
		f.Since = since
	}
	events, err := h.activity.List(c.Request.Context(), f)
	if err != nil {
		h.log.Warn("Failed to load activity", "error", err)
		ok(c, []models.Event{})
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	ok(c, events)
}

// Reconcile POST /api/admin/reconcile[?campaignId=]
func (h *AdminHandler) Reconcile(c *gin.Context) {
	ctx := c.Request.Context()
	if id := utils.ParseUintPtr(c.Query("campaignId")); id != nil {
		m, err := h.ads.ReconcileMetrics(ctx, *id)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, gin.H{"campaigns": 1, "metrics": m})
		return
	}
	n, err := h.reconciler.RunOnce(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"campaigns": n})
}

func (h *AdminHandler) Export(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	out, err := h.export.Export(c.Request.Context(), actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	attachment(c, "wikits-export", out.Metadata.ExportedAt)
	ok(c, out)
}

// ExportActivity GET /api/export-activity[?since=]
func (h *AdminHandler) ExportActivity(c *gin.Context) {
	since, err := parseSince(c.Query("since"))
	if err != nil {
		fail(c, apperr.Validation("since must be RFC3339", nil))
		return
	}
	actor, _ := middleware.CurrentActor(c)
	out, err := h.export.ExportActivity(c.Request.Context(), actor.ID, since)
	if err != nil {
		fail(c, err)
		return
	}
	attachment(c, "wikits-activity", out.Metadata.ExportedAt)
	ok(c, out)
}

func attachment(c *gin.Context, prefix string, at time.Time) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.json"`, prefix, at.Format("20060102-150405")))
}

// parseSince 空串返回零值
func parseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
