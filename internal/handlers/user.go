package handlers

import (
	"wikits/internal/logger"
	"wikits/internal/middleware"
	"wikits/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	users *services.UserService
	log   *logger.Logger
}

func NewUserHandler(users *services.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{users: users, log: log.With("handler", "user")}
}

// Me GET /api/me 同步并返回当前用户
func (h *UserHandler) Me(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	user, err := h.users.SyncUser(c.Request.Context(), actor)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"user": user, "admin": user.IsAdmin()})
}
