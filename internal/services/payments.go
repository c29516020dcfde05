package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"

	"golang.org/x/crypto/sha3"
	"gorm.io/gorm"
)

type CheckoutRequest struct {
	CampaignID    uint
	CampaignName  string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutProvider 托管收银台
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// PaymentRequest 402 响应中的支付要求，钱包据此构造交易
type PaymentRequest struct {
	Amount      string `json:"amount"` // 分
	Currency    string `json:"currency"`
	Recipient   string `json:"recipient"`
	Network     string `json:"network"`
	Asset       string `json:"asset"`
	CampaignID  uint   `json:"campaignId"`
	Description string `json:"description"`
}

// ProofVerifier 校验 X-PAYMENT 支付凭证
type ProofVerifier interface {
	Verify(ctx context.Context, proof string, req PaymentRequest) error
}

// UnverifiedProofVerifier 只检查凭证非空，不做任何链上或签名校验
type UnverifiedProofVerifier struct {
	log *logger.Logger
}

func NewUnverifiedProofVerifier(baseLog *logger.Logger) *UnverifiedProofVerifier {
	return &UnverifiedProofVerifier{log: baseLog.With("component", "UnverifiedProofVerifier")}
}

func (v *UnverifiedProofVerifier) Verify(ctx context.Context, proof string, req PaymentRequest) error {
	if strings.TrimSpace(proof) == "" {
		return errors.New("empty payment proof")
	}
	// TODO: verify the EIP-3009 authorization signature and settle it through a facilitator before trusting the proof.
	v.log.Warn("Accepting x402 payment proof without verification", "campaign_id", req.CampaignID, "amount", req.Amount)
	return nil
}

type X402Config struct {
	Recipient string
	Network   string
	Asset     string
}

type PaymentService struct {
	db       *gorm.DB
	log      *logger.Logger
	ads      *AdsService
	settings *SettingsService
	checkout CheckoutProvider
	verifier ProofVerifier
	x402     X402Config
	siteURL  string
}

func NewPaymentService(db *gorm.DB, ads *AdsService, settings *SettingsService, checkout CheckoutProvider, verifier ProofVerifier, x402 X402Config, siteURL string, baseLog *logger.Logger) *PaymentService {
	return &PaymentService{
		db:       db,
		ads:      ads,
		settings: settings,
		checkout: checkout,
		verifier: verifier,
		x402:     x402,
		siteURL:  strings.TrimRight(siteURL, "/"),
		log:      baseLog.With("service", "PaymentService"),
	}
}

// Checkout 创建托管支付会话，并记录引用该会话的 pending 交易
func (s *PaymentService) Checkout(ctx context.Context, actor Actor, campaignID uint) (*CheckoutSession, *models.Transaction, error) {
	c, err := s.ads.Get(ctx, actor, campaignID)
	if err != nil {
		return nil, nil, err
	}
	amount, err := payableCents(c)
	if err != nil {
		return nil, nil, err
	}
	if s.checkout == nil {
		return nil, nil, apperr.External("checkout", errors.New("checkout provider not configured"))
	}

	base := fmt.Sprintf("%s/ads/campaigns/%d", s.siteURL, c.ID)
	session, err := s.checkout.CreateSession(ctx, CheckoutRequest{
		CampaignID:    c.ID,
		CampaignName:  c.Name,
		AmountCents:   amount,
		Currency:      "usd",
		CustomerEmail: actor.Email,
		SuccessURL:    base + "?checkout=success&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     base + "?checkout=cancelled",
	})
	if err != nil {
		s.log.Error("Checkout session creation failed", "campaign_id", c.ID, "error", err)
		return nil, nil, wrapExternal("checkout", err)
	}

	// 会话已创建但交易写入失败时，会话过期即失效，不会产生扣款记录
	pending := &models.Transaction{
		UserID:     actor.ID,
		CampaignID: c.ID,
		Amount:     amount,
		Currency:   "usd",
		Status:     models.TransactionPending,
		Method:     models.MethodStripe,
		Reference:  session.ID,
	}
	if err := s.db.WithContext(ctx).Create(pending).Error; err != nil {
		return nil, nil, apperr.Internal(err)
	}
	s.log.Info("Checkout session created", "campaign_id", c.ID, "session_id", session.ID, "amount", amount)
	return session, pending, nil
}

// payableCents 三种激活方式共用：金额必须为正
func payableCents(c *models.Campaign) (int64, error) {
	amount := c.TotalCents()
	if amount <= 0 {
		return 0, apperr.Validation("campaign budget must be positive before activation", nil)
	}
	return amount, nil
}

func wrapExternal(service string, err error) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e
	}
	return apperr.External(service, err)
}

// Confirm 激活活动并确认交易：存在 pending 则标记成功，已成功则直接返回，否则新建成功交易
func (s *PaymentService) Confirm(ctx context.Context, actor Actor, campaignID uint, sessionID string) (*models.Transaction, error) {
	c, err := s.ads.Get(ctx, actor, campaignID)
	if err != nil {
		return nil, err
	}
	amount, err := payableCents(c)
	if err != nil {
		return nil, err
	}

	var out models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Campaign{}).Where("id = ?", c.ID).Update("status", models.CampaignActive).Error; err != nil {
			return err
		}

		scope := func() *gorm.DB {
			q := tx.Where("campaign_id = ? AND method = ?", c.ID, models.MethodStripe)
			if sessionID != "" {
				q = q.Where("reference = ?", sessionID)
			}
			return q
		}

		var existing models.Transaction
		if err := scope().Where("status = ?", models.TransactionSucceeded).Order("id DESC").Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		if existing.ID != 0 {
			out = existing
			return nil
		}

		var pending models.Transaction
		if err := scope().Where("status = ?", models.TransactionPending).Order("id DESC").Limit(1).Find(&pending).Error; err != nil {
			return err
		}
		if pending.ID != 0 {
			if err := tx.Model(&pending).Updates(map[string]interface{}{
				"status": models.TransactionSucceeded,
				"amount": amount,
			}).Error; err != nil {
				return err
			}
			return tx.First(&out, pending.ID).Error
		}

		out = models.Transaction{
			UserID:     c.UserID,
			CampaignID: c.ID,
			Amount:     amount,
			Currency:   "usd",
			Status:     models.TransactionSucceeded,
			Method:     models.MethodStripe,
			Reference:  sessionID,
		}
		return tx.Create(&out).Error
	})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.Info("Campaign activated by checkout", "campaign_id", c.ID, "transaction_id", out.ID, "amount", out.Amount)
	return &out, nil
}

// PaymentRequestFor 活动的 x402 支付要求
func (s *PaymentService) PaymentRequestFor(c *models.Campaign) PaymentRequest {
	return PaymentRequest{
		Amount:      strconv.FormatInt(c.TotalCents(), 10),
		Currency:    "usd",
		Recipient:   s.x402.Recipient,
		Network:     s.x402.Network,
		Asset:       s.x402.Asset,
		CampaignID:  c.ID,
		Description: fmt.Sprintf("Activate campaign %q for %d days", c.Name, c.DurationDays),
	}
}

// ProofReference 凭证的 Keccak-256 摘要，作为交易引用
func ProofReference(proof string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(proof))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// ActivateX402 无凭证时返回 PaymentRequired 及支付要求；有凭证时交给 verifier 后激活
func (s *PaymentService) ActivateX402(ctx context.Context, actor Actor, campaignID uint, proof string) (*models.Transaction, *PaymentRequest, error) {
	if !s.settings.Bool(ctx, SettingX402Enabled) {
		return nil, nil, apperr.New(apperr.KindForbidden, "x402_disabled", "pay-per-call activation is disabled")
	}
	c, err := s.ads.Get(ctx, actor, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := payableCents(c); err != nil {
		return nil, nil, err
	}
	req := s.PaymentRequestFor(c)

	proof = strings.TrimSpace(proof)
	if proof == "" {
		return nil, &req, apperr.New(apperr.KindPaymentRequired, "payment_required", "payment required")
	}
	if err := s.verifier.Verify(ctx, proof, req); err != nil {
		s.log.Warn("x402 proof rejected", "campaign_id", c.ID, "error", err)
		return nil, &req, apperr.New(apperr.KindPaymentRequired, "invalid_payment", "payment proof rejected")
	}

	ref := ProofReference(proof)
	var out models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Campaign{}).Where("id = ?", c.ID).Update("status", models.CampaignActive).Error; err != nil {
			return err
		}
		// 同一凭证重放不重复记账
		if err := tx.Where("campaign_id = ? AND method = ? AND reference = ?", c.ID, models.MethodX402, ref).
			Limit(1).Find(&out).Error; err != nil {
			return err
		}
		if out.ID != 0 {
			return nil
		}
		out = models.Transaction{
			UserID:     c.UserID,
			CampaignID: c.ID,
			Amount:     c.TotalCents(),
			Currency:   "usd",
			Status:     models.TransactionSucceeded,
			Method:     models.MethodX402,
			Reference:  ref,
		}
		return tx.Create(&out).Error
	})
	if err != nil {
		return nil, nil, apperr.Internal(err)
	}
	s.log.Info("Campaign activated by x402", "campaign_id", c.ID, "transaction_id", out.ID)
	return &out, nil, nil
}
