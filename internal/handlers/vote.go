package handlers

import (
	"wikits/internal/middleware"

	"github.com/gin-gonic/gin"
)

type voteRequest struct {
	Value int `json:"value" binding:"required,oneof=1 -1"`
}

// Vote POST /api/threads/:id/vote，重复同值取消，反向值改票
func (h *ForumHandler) Vote(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req voteRequest
	if !bindJSON(c, &req) {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	res, err := h.forum.ToggleVote(c.Request.Context(), id, actor.ID, req.Value)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *ForumHandler) Tags(c *gin.Context) {
	tags, err := h.forum.ListTags(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, tags)
}
