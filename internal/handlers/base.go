package handlers

import (
	"context"
	"net/http"
	"strconv"
	"wikits/internal/apperr"
	"wikits/internal/middleware"
	"wikits/internal/services"
	"wikits/internal/utils"

	"github.com/gin-gonic/gin"
)

// Render helper to inject common variables like 'current user'
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	if actor, ok := middleware.CurrentActor(c); ok {
		obj["CurrentUser"] = actor
	}
	obj["CurrentPath"] = c.Request.URL.Path
	c.HTML(code, name, obj)
}

func RenderError(c *gin.Context, code int, message string) {
	Render(c, code, "error.html", gin.H{"Error": message, "Code": code})
}

// fail 写出统一错误信封
func fail(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// bindJSON 绑定并校验请求体，失败时已写出 400
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, middleware.BindError(err))
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		fail(c, apperr.Validation("invalid "+name, nil))
		return 0, false
	}
	return uint(n), true
}

// actorOf 匿名访问时返回零值 Actor
func actorOf(c *gin.Context) services.Actor {
	actor, _ := middleware.CurrentActor(c)
	return actor
}

// pageOf 默认分页大小来自系统设置
func pageOf(ctx context.Context, c *gin.Context, settings *services.SettingsService) utils.Pagination {
	def := settings.Int(ctx, services.SettingDefaultPageSize, 20)
	return utils.ParsePagination(c.Query("page"), c.Query("limit"), def, 100)
}

func ok(c *gin.Context, v interface{}) {
	c.JSON(http.StatusOK, v)
}
