package router

import (
	"net/http"
	"wikits/internal/config"
	"wikits/internal/handlers"
	"wikits/internal/logger"
	"wikits/internal/middleware"
	"wikits/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "wikits_session"

// Deps 路由所需的全部服务
type Deps struct {
	Config        *config.Config
	Log           *logger.Logger
	Auth          *middleware.Authenticator
	Settings      *services.SettingsService
	Activity      *services.ActivityService
	Topics        *services.TopicService
	Generator     *services.Generator
	Seed          *services.SeedService
	Forum         *services.ForumService
	Ads           *services.AdsService
	Payments      *services.PaymentService
	Reconciler    *services.MetricsReconciler
	Users         *services.UserService
	Admin         *services.AdminService
	Search        *services.SearchService
	Export        *services.ExportService
	Notifications *services.NotificationService
}

// Use 注册全局中间件
func Use(r *gin.Engine, d Deps) {
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(d.Log.With("component", "http")))
	r.Use(middleware.Metrics())
	// SSE 需要逐条刷新，不压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/wiki/job/stream", "/metrics"})))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-PAYMENT")
	corsCfg.AllowCredentials = true
	if len(d.Config.CORSOrigins) == 0 || (len(d.Config.CORSOrigins) == 1 && d.Config.CORSOrigins[0] == "*") {
		corsCfg.AllowCredentials = false
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = d.Config.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	store := cookie.NewStore([]byte(d.Config.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   365 * 24 * 3600,
		HttpOnly: true,
		Secure:   d.Config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(middleware.Visitor())
	r.Use(d.Auth.LoadActor())
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Handlers
	topicHandler := handlers.NewTopicHandler(d.Topics, d.Settings)
	wikiHandler := handlers.NewWikiHandler(d.Topics, d.Generator, d.Activity, d.Settings, d.Log)
	forumHandler := handlers.NewForumHandler(d.Forum, d.Settings, d.Log)
	adsHandler := handlers.NewAdsHandler(d.Ads, d.Payments, d.Log)
	adminHandler := handlers.NewAdminHandler(d.Admin, d.Users, d.Settings, d.Activity, d.Ads, d.Reconciler, d.Export, d.Log)
	userHandler := handlers.NewUserHandler(d.Users, d.Log)
	searchHandler := handlers.NewSearchHandler(d.Search, d.Activity)
	notificationHandler := handlers.NewNotificationHandler(d.Notifications)
	seedHandler := handlers.NewSeedHandler(d.Config, d.Seed, d.Log)
	seoHandler := handlers.NewSEOHandler(d.Topics, d.Settings, d.Config.SiteURL)

	// 页面与 SEO
	r.GET("/", wikiHandler.Home)           // 顶层目录
	r.GET("/wiki/:slug", wikiHandler.Page) // 主题页
	r.GET("/robots.txt", seoHandler.RobotsTxt)
	r.GET("/sitemap.xml", seoHandler.SitemapXML)
	r.GET("/feed.xml", seoHandler.RSSFeed)

	api := r.Group("/api")

	// 公共接口 (Public API)
	api.GET("/search", searchHandler.Search)    // 搜索主题与讨论
	api.POST("/activity", searchHandler.Record) // 客户端行为上报
	api.GET("/seed", seedHandler.Seed)          // 重置示例数据（仅开发环境）

	api.GET("/topics/list", topicHandler.List)   // 主题分页列表
	api.GET("/topics/nodes", topicHandler.Nodes) // 主题树子节点
	api.GET("/topics/graph", topicHandler.Graph) // 知识图谱

	api.GET("/wiki/topics/:slug", wikiHandler.Topic)   // 主题详情（不存在则建存根）
	api.GET("/wiki/chapters/:id", wikiHandler.Chapter) // 章节内容
	api.GET("/wiki/status", wikiHandler.Status)        // 轮询指纹
	api.POST("/wiki/generate", wikiHandler.Generate)   // 提交生成任务
	api.GET("/wiki/job", wikiHandler.Job)              // 任务状态（水平触发）
	api.GET("/wiki/job/stream", wikiHandler.JobStream) // 任务状态 SSE

	api.GET("/threads/list", forumHandler.ListThreads) // 讨论列表
	api.GET("/threads/:id", forumHandler.GetThread)    // 讨论详情
	api.GET("/tags", forumHandler.Tags)                // 标签

	api.POST("/ads/track", adsHandler.Track) // 曝光/点击
	api.GET("/ads/serve", adsHandler.Serve)  // 选取投放中的广告

	// 受保护接口 (Protected API)
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.GET("/me", userHandler.Me)
		authorized.GET("/notifications", notificationHandler.List)

		authorized.POST("/wiki/topics/:slug/chapters", wikiHandler.AddChapter) // 追加章节
		authorized.POST("/wiki/faq", wikiHandler.FAQ)                          // 提问

		authorized.POST("/threads", forumHandler.CreateThread)
		authorized.POST("/threads/:id/posts", forumHandler.CreatePost)
		authorized.POST("/threads/:id/vote", forumHandler.Vote)
		authorized.DELETE("/threads/:id", forumHandler.DeleteThread)
		authorized.DELETE("/posts/:id", forumHandler.DeletePost)

		authorized.GET("/ads/campaigns", adsHandler.ListCampaigns)
		authorized.POST("/ads/campaigns", adsHandler.CreateCampaign)
		authorized.GET("/ads/campaigns/:id", adsHandler.GetCampaign)
		authorized.PATCH("/ads/campaigns/:id", adsHandler.UpdateCampaign)
		authorized.DELETE("/ads/campaigns/:id", adsHandler.DeleteCampaign)
		authorized.POST("/ads/campaigns/:id/checkout", adsHandler.Checkout)          // 托管收银台
		authorized.POST("/ads/campaigns/:id/activate/confirm", adsHandler.Confirm)   // 收银台回跳确认
		authorized.POST("/ads/campaigns/:id/activate/x402", adsHandler.ActivateX402) // 402 支付激活
	}

	// 管理接口 (Admin API)
	adminOnly := []gin.HandlerFunc{middleware.AdminRequired(), middleware.SyncUser(d.Users, d.Log)}
	admin := api.Group("/admin", adminOnly...)
	{
		admin.GET("/stats", adminHandler.Stats)
		admin.GET("/status", adminHandler.Status)
		admin.GET("/users", adminHandler.Users)
		admin.GET("/settings", adminHandler.Settings)
		admin.PUT("/settings/:key", adminHandler.UpdateSetting)
		admin.GET("/activity", adminHandler.Activity)
		admin.POST("/reconcile", adminHandler.Reconcile)
	}
	api.GET("/export", append(adminOnly, adminHandler.Export)...)
	api.GET("/export-activity", append(adminOnly, adminHandler.ExportActivity)...)
}
