package handlers

import (
	"net/http"
	"wikits/internal/apperr"
	"wikits/internal/middleware"

	"github.com/gin-gonic/gin"
)

const paymentHeader = "X-PAYMENT"

// Checkout POST /api/ads/campaigns/:id/checkout
func (h *AdsHandler) Checkout(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	session, tx, err := h.payments.Checkout(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"sessionId": session.ID, "url": session.URL, "transaction": tx})
}

type confirmRequest struct {
	SessionID string `json:"sessionId" binding:"omitempty,max=255"`
}

// Confirm POST /api/ads/campaigns/:id/activate/confirm，收银台回跳后调用，可重复
func (h *AdsHandler) Confirm(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	var req confirmRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.Query("session_id")
	}
	actor, _ := middleware.CurrentActor(c)
	tx, err := h.payments.Confirm(c.Request.Context(), actor, id, req.SessionID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"status": "active", "transaction": tx})
}

// ActivateX402 POST /api/ads/campaigns/:id/activate/x402
// 缺少 X-PAYMENT 时返回 402 和 paymentRequest
func (h *AdsHandler) ActivateX402(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	actor, _ := middleware.CurrentActor(c)
	tx, req, err := h.payments.ActivateX402(c.Request.Context(), actor, id, c.GetHeader(paymentHeader))
	if err != nil {
		if apperr.Is(err, apperr.KindPaymentRequired) && req != nil {
			e := apperr.As(err)
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":          middleware.ErrorBody{Message: e.Error(), Code: e.Code},
				"paymentRequest": req,
			})
			return
		}
		fail(c, err)
		return
	}
	ok(c, gin.H{"status": "active", "transaction": tx})
}
