package middleware

import (
	"wikits/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const VisitorKey = "visitor_id"

// Visitor 为匿名访客分配稳定的会话 ID
func Visitor() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		id, _ := session.Get(VisitorKey).(string)
		if id == "" {
			id = uuid.NewString()
			session.Set(VisitorKey, id)
			_ = session.Save()
		}
		c.Set(VisitorKey, id)
		c.Request = c.Request.WithContext(services.WithVisitor(c.Request.Context(), id))
		c.Next()
	}
}

func VisitorID(c *gin.Context) string {
	return c.GetString(VisitorKey)
}
