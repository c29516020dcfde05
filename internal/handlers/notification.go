package handlers

import (
	"wikits/internal/apperr"
	"wikits/internal/middleware"
	"wikits/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List GET /api/notifications?since=，默认最近 7 天
func (h *NotificationHandler) List(c *gin.Context) {
	since, err := parseSince(c.Query("since"))
	if err != nil {
		fail(c, apperr.Validation("since must be RFC3339", nil))
		return
	}
	actor, _ := middleware.CurrentActor(c)
	list, err := h.notifications.ForUser(c.Request.Context(), actor.ID, since)
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []services.Notification{}
	}
	ok(c, list)
}
