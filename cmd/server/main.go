package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	"wikits/internal/config"
	"wikits/internal/db"
	"wikits/internal/logger"
	"wikits/internal/middleware"
	"wikits/internal/router"
	"wikits/internal/services"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()

	appLog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLog.Sync()

	// Initialize Database
	conn := db.Init(cfg.DatabaseURL, appLog)

	settings := services.NewSettingsService(conn, appLog)
	activity := services.NewActivityService(conn, appLog)
	llm := services.NewLLMService(cfg, appLog)
	topics := services.NewTopicService(conn, llm, appLog)
	generator := services.NewGenerator(conn, llm, services.NewJobStore(), activity, settings, appLog)

	ads := services.NewAdsService(conn, settings, appLog)
	reconciler := services.NewMetricsReconciler(ads, cfg.ReconcileInterval, appLog)
	ads.SetScheduler(reconciler)

	var checkout services.CheckoutProvider
	if cfg.StripeSecretKey != "" {
		checkout = services.NewStripeCheckout(cfg.StripeSecretKey, appLog)
	} else {
		appLog.Warn("STRIPE_SECRET_KEY not set, hosted checkout disabled")
	}
	payments := services.NewPaymentService(conn, ads, settings, checkout,
		services.NewUnverifiedProofVerifier(appLog),
		services.X402Config{Recipient: cfg.X402Recipient, Network: cfg.X402Network, Asset: cfg.X402Asset},
		cfg.SiteURL, appLog)

	auth, err := middleware.NewAuthenticator(cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to initialize authenticator", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 后台对账
	reconciler.Start(ctx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.HTMLRender = loadTemplates("./web/templates")
	r.Static("/static", "./web/static")
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	deps := router.Deps{
		Config:        cfg,
		Log:           appLog,
		Auth:          auth,
		Settings:      settings,
		Activity:      activity,
		Topics:        topics,
		Generator:     generator,
		Seed:          services.NewSeedService(conn, appLog),
		Forum:         services.NewForumService(conn, activity, appLog),
		Ads:           ads,
		Payments:      payments,
		Reconciler:    reconciler,
		Users:         services.NewUserService(conn, appLog),
		Admin:         services.NewAdminService(conn, generator.Jobs(), settings, appLog),
		Search:        services.NewSearchService(conn, activity, appLog),
		Export:        services.NewExportService(conn, appLog),
		Notifications: services.NewNotificationService(conn, activity, appLog),
	}
	router.Use(r, deps)
	router.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Info("Wikits server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Graceful shutdown failed", "error", err)
	}
}

func loadTemplates(templatesDir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()

	layouts, err := filepath.Glob(templatesDir + "/layouts/*.html")
	if err != nil {
		panic(err)
	}

	assemble := func(view string) []string {
		files := make([]string, 0, len(layouts)+1)
		files = append(files, layouts...)
		return append(files, view)
	}

	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"timeAgo": func(t time.Time) string {
			d := time.Since(t)
			switch {
			case d < time.Minute:
				return "just now"
			case d < time.Hour:
				return fmt.Sprintf("%dm ago", int(d.Minutes()))
			case d < 24*time.Hour:
				return fmt.Sprintf("%dh ago", int(d.Hours()))
			case d < 30*24*time.Hour:
				return fmt.Sprintf("%dd ago", int(d.Hours()/24))
			}
			return t.Format("2006-01-02")
		},
		"urlquery": func(s string) string {
			return url.QueryEscape(s)
		},
	}

	r.AddFromFilesFuncs("wiki/index.html", funcMap, assemble(templatesDir+"/views/wiki/index.html")...)
	r.AddFromFilesFuncs("wiki/topic.html", funcMap, assemble(templatesDir+"/views/wiki/topic.html")...)
	r.AddFromFilesFuncs("error.html", funcMap, assemble(templatesDir+"/views/error.html")...)

	return r
}
