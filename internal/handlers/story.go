package handlers

import (
	"net/http"
	"wikits/internal/logger"
	"wikits/internal/middleware"
	"wikits/internal/services"
	"wikits/internal/utils"

	"github.com/gin-gonic/gin"
)

// ForumHandler 讨论区：帖子、回复、投票、标签
type ForumHandler struct {
	forum    *services.ForumService
	settings *services.SettingsService
	log      *logger.Logger
}

func NewForumHandler(forum *services.ForumService, settings *services.SettingsService, log *logger.Logger) *ForumHandler {
	return &ForumHandler{forum: forum, settings: settings, log: log.With("handler", "forum")}
}

// ListThreads GET /api/threads/list?q&sort&page&limit&topicId&category&tag
func (h *ForumHandler) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()
	page, err := h.forum.ListThreads(ctx, services.ThreadListFilter{
		Query:    c.Query("q"),
		Sort:     c.DefaultQuery("sort", services.SortNewest),
		TopicID:  utils.ParseUintPtr(c.Query("topicId")),
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Page:     pageOf(ctx, c, h.settings),
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, page)
}

func (h *ForumHandler) GetThread(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	detail, err := h.forum.GetThread(c.Request.Context(), id, actorOf(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, detail)
}

func (h *ForumHandler) CreateThread(c *gin.Context) {
	var in services.CreateThreadInput
	if !bindJSON(c, &in) {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	thread, err := h.forum.CreateThread(c.Request.Context(), actor, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, thread)
}

type replyRequest struct {
	Content string `json:"content" binding:"required,max=10000"`
}

// CreatePost POST /api/threads/:id/posts
func (h *ForumHandler) CreatePost(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req replyRequest
	if !bindJSON(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	post, err := h.forum.AddPost(c.Request.Context(), actor, id, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// DeleteThread 作者或管理员
func (h *ForumHandler) DeleteThread(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	if err := h.forum.DeleteThread(c.Request.Context(), actor, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeletePost 作者或管理员
func (h *ForumHandler) DeletePost(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	if err := h.forum.DeletePost(c.Request.Context(), actor, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
