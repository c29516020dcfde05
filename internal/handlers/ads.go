package handlers

import (
	"net/http"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/middleware"
	"wikits/internal/services"

	"github.com/gin-gonic/gin"
)

type AdsHandler struct {
	ads      *services.AdsService
	payments *services.PaymentService
	log      *logger.Logger
}

func NewAdsHandler(ads *services.AdsService, payments *services.PaymentService, log *logger.Logger) *AdsHandler {
	return &AdsHandler{ads: ads, payments: payments, log: log.With("handler", "ads")}
}

// ListCampaigns 普通用户只看到自己的活动，管理员看到全部
func (h *AdsHandler) ListCampaigns(c *gin.Context) {
	actor, _ := middleware.CurrentActor(c)
	list, err := h.ads.List(c.Request.Context(), actor)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, list)
}

func (h *AdsHandler) CreateCampaign(c *gin.Context) {
	var in services.CampaignInput
	if !bindJSON(c, &in) {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	campaign, err := h.ads.Create(c.Request.Context(), actor, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

func (h *AdsHandler) GetCampaign(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	campaign, err := h.ads.Get(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, campaign)
}

func (h *AdsHandler) UpdateCampaign(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var patch services.CampaignPatch
	if !bindJSON(c, &patch) {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	campaign, err := h.ads.Update(c.Request.Context(), actor, id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, campaign)
}

func (h *AdsHandler) DeleteCampaign(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	if err := h.ads.Delete(c.Request.Context(), actor, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Track POST /api/ads/track，匿名可调用
func (h *AdsHandler) Track(c *gin.Context) {
	var in services.TrackInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.ads.Track(c.Request.Context(), in); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Serve GET /api/ads/serve?country，没有可投放活动时返回 204
func (h *AdsHandler) Serve(c *gin.Context) {
	campaign, err := h.ads.Serve(c.Request.Context(), c.Query("country"))
	if apperr.Is(err, apperr.KindNotFound) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, campaign)
}
