package handlers

import (
	"wikits/internal/services"
	"wikits/internal/utils"

	"github.com/gin-gonic/gin"
)

// TopicHandler 主题树浏览接口
type TopicHandler struct {
	topics   *services.TopicService
	settings *services.SettingsService
}

func NewTopicHandler(topics *services.TopicService, settings *services.SettingsService) *TopicHandler {
	return &TopicHandler{topics: topics, settings: settings}
}

// List GET /api/topics/list?q&parentId&page&limit
func (h *TopicHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	f := services.TopicListFilter{
		Query:     c.Query("q"),
		ParentID:  utils.ParseUintPtr(c.Query("parentId")),
		RootsOnly: c.Query("parentId") == "null",
		Page:      pageOf(ctx, c, h.settings),
	}
	page, err := h.topics.List(ctx, f)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, page)
}

// Nodes GET /api/topics/nodes?parentId，省略 parentId 返回根节点
func (h *TopicHandler) Nodes(c *gin.Context) {
	nodes, err := h.topics.Children(c.Request.Context(), utils.ParseUintPtr(c.Query("parentId")))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, nodes)
}

func (h *TopicHandler) Graph(c *gin.Context) {
	g, err := h.topics.Graph(c.Request.Context(), c.Query("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, g)
}
