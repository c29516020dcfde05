package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"wikits/internal/apperr"
	"wikits/internal/models"
	"wikits/internal/services"

	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	search   *services.SearchService
	activity *services.ActivityService
}

func NewSearchHandler(search *services.SearchService, activity *services.ActivityService) *SearchHandler {
	return &SearchHandler{search: search, activity: activity}
}

// Search GET /api/search?q=
func (h *SearchHandler) Search(c *gin.Context) {
	res, err := h.search.Search(c.Request.Context(), c.Query("q"), actorOf(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

type activityRequest struct {
	Action   string           `json:"action" binding:"required,max=191"`
	Type     models.EventType `json:"type" binding:"required"`
	Metadata json.RawMessage  `json:"metadata"`
}

// 客户端只允许上报浏览与搜索
var clientEventTypes = map[models.EventType]bool{
	models.EventNavigation: true,
	models.EventSearch:     true,
}

// Record POST /api/activity
func (h *SearchHandler) Record(c *gin.Context) {
	var req activityRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Type = models.EventType(strings.ToUpper(string(req.Type)))
	if !clientEventTypes[req.Type] {
		fail(c, apperr.Validation("event type not accepted from clients", []string{string(models.EventNavigation), string(models.EventSearch)}))
		return
	}
	payload, err := services.DecodePayload(req.Type, req.Metadata)
	if err != nil {
		fail(c, err)
		return
	}
	ev, err := h.activity.Record(c.Request.Context(), actorOf(c).ID, req.Action, payload)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}
