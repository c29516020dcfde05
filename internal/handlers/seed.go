package handlers

import (
	"wikits/internal/apperr"
	"wikits/internal/config"
	"wikits/internal/logger"
	"wikits/internal/services"

	"github.com/gin-gonic/gin"
)

type SeedHandler struct {
	cfg  *config.Config
	seed *services.SeedService
	log  *logger.Logger
}

func NewSeedHandler(cfg *config.Config, seed *services.SeedService, log *logger.Logger) *SeedHandler {
	return &SeedHandler{cfg: cfg, seed: seed, log: log.With("handler", "seed")}
}

// Seed GET /api/seed 清空并重新导入示例内容，生产环境拒绝
func (h *SeedHandler) Seed(c *gin.Context) {
	if h.cfg.IsProduction() {
		fail(c, apperr.New(apperr.KindForbidden, "seed_disabled", "seeding is disabled in production"))
		return
	}
	ctx := c.Request.Context()
	if err := h.seed.Reset(ctx); err != nil {
		fail(c, err)
		return
	}
	opts := services.SeedOptions{ThreadProbability: services.DefaultThreadProbability}
	if actor := actorOf(c); actor.ID != "" {
		opts.AuthorID, opts.AuthorName = actor.ID, actor.DisplayName()
	}
	res, err := h.seed.Seed(ctx, services.DefaultOutline, opts)
	if err != nil {
		fail(c, err)
		return
	}
	h.log.Warn("Content reseeded", "topics", res.Topics, "threads", res.Threads)
	ok(c, res)
}
