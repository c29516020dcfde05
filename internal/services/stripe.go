package services

import (
	"context"
	"errors"
	"strconv"
	"wikits/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// StripeCheckout 基于 Stripe Checkout 的收银台
type StripeCheckout struct {
	client *session.Client
	log    *logger.Logger
}

func NewStripeCheckout(secretKey string, baseLog *logger.Logger) *StripeCheckout {
	return &StripeCheckout{
		client: &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		log:    baseLog.With("component", "StripeCheckout"),
	}
}

func (s *StripeCheckout) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if s.client.Key == "" {
		return nil, errors.New("STRIPE_SECRET_KEY not configured")
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Campaign: " + req.CampaignName),
				},
				UnitAmount: stripe.Int64(req.AmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(req.CampaignID), 10)),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("campaignId", strconv.FormatUint(uint64(req.CampaignID), 10))
	params.Context = ctx

	sess, err := s.client.New(params)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Stripe checkout session created", "session_id", sess.ID)
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}
