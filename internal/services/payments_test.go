package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"wikits/internal/apperr"
	"wikits/internal/models"

	"gorm.io/gorm"
)

type fakeCheckout struct {
	last CheckoutRequest
	err  error
}

func (f *fakeCheckout) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &CheckoutSession{ID: "cs_test_123", URL: "https://checkout.example/cs_test_123"}, nil
}

func newTestPayments(t *testing.T, checkout CheckoutProvider) (*PaymentService, *AdsService, *gorm.DB) {
	conn := newTestDB(t)
	log := testLogger()
	settings := NewSettingsService(conn, log)
	ads := NewAdsService(conn, settings, log)
	x402 := X402Config{Recipient: "0xabc", Network: "base-sepolia", Asset: "USDC"}
	return NewPaymentService(conn, ads, settings, checkout, NewUnverifiedProofVerifier(log), x402, "https://wikits.test/", log), ads, conn
}

func TestConfirmActivatesAndRecordsOnce(t *testing.T) {
	svc, ads, conn := newTestPayments(t, &fakeCheckout{})
	ctx := context.Background()
	owner := Actor{ID: "owner"}

	c, _ := ads.Create(ctx, owner, CampaignInput{Name: "Spring", DailyBudget: 2, DurationDays: 7})

	tx, err := svc.Confirm(ctx, owner, c.ID, "")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if tx.Amount != 1400 || tx.Status != models.TransactionSucceeded {
		t.Fatalf("transaction: %+v", tx)
	}
	got, _ := ads.Get(ctx, owner, c.ID)
	if got.Status != models.CampaignActive {
		t.Fatalf("status: %s", got.Status)
	}

	again, err := svc.Confirm(ctx, owner, c.ID, "")
	if err != nil || again.ID != tx.ID {
		t.Fatalf("repeat confirm: %+v err=%v", again, err)
	}
	var n int64
	conn.Model(&models.Transaction{}).Where("campaign_id = ?", c.ID).Count(&n)
	if n != 1 {
		t.Fatalf("transactions: want=1 got=%d", n)
	}
}

func TestConfirmUsesBudgetTimesDaysInCents(t *testing.T) {
	svc, ads, _ := newTestPayments(t, &fakeCheckout{})
	ctx := context.Background()
	owner := Actor{ID: "owner"}
	c, _ := ads.Create(ctx, owner, CampaignInput{Name: "Big", DailyBudget: 20, DurationDays: 7})

	tx, err := svc.Confirm(ctx, owner, c.ID, "")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if tx.Amount != 14000 {
		t.Fatalf("amount: want=14000 got=%d", tx.Amount)
	}
}

func TestCheckoutThenConfirmMarksPendingSucceeded(t *testing.T) {
	checkout := &fakeCheckout{}
	svc, ads, conn := newTestPayments(t, checkout)
	ctx := context.Background()
	owner := Actor{ID: "owner", Email: "o@example.com"}
	c, _ := ads.Create(ctx, owner, CampaignInput{Name: "Spring", DailyBudget: 5, DurationDays: 3})

	session, pending, err := svc.Checkout(ctx, owner, c.ID)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if pending.Status != models.TransactionPending || pending.Reference != session.ID || pending.Amount != 1500 {
		t.Fatalf("pending: %+v", pending)
	}
	if checkout.last.AmountCents != 1500 || !strings.HasPrefix(checkout.last.SuccessURL, "https://wikits.test/ads/campaigns/") {
		t.Fatalf("checkout request: %+v", checkout.last)
	}

	tx, err := svc.Confirm(ctx, owner, c.ID, session.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if tx.ID != pending.ID || tx.Status != models.TransactionSucceeded {
		t.Fatalf("confirm must promote the pending row: %+v", tx)
	}
	var n int64
	conn.Model(&models.Transaction{}).Count(&n)
	if n != 1 {
		t.Fatalf("transactions: want=1 got=%d", n)
	}
}

func TestCheckoutErrors(t *testing.T) {
	svc, ads, _ := newTestPayments(t, &fakeCheckout{err: errors.New("card network down")})
	ctx := context.Background()
	owner := Actor{ID: "owner"}

	free, _ := ads.Create(ctx, owner, CampaignInput{Name: "Free"})
	if _, _, err := svc.Checkout(ctx, owner, free.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("zero budget: want Validation got=%v", err)
	}
	paid, _ := ads.Create(ctx, owner, CampaignInput{Name: "Paid", DailyBudget: 1, DurationDays: 1})
	if _, _, err := svc.Checkout(ctx, owner, paid.ID); !apperr.Is(err, apperr.KindExternal) {
		t.Fatalf("provider down: want External got=%v", err)
	}
	if _, _, err := svc.Checkout(ctx, Actor{ID: "other"}, paid.ID); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("non-owner: want Forbidden got=%v", err)
	}
}

func TestZeroBudgetCannotActivate(t *testing.T) {
	svc, ads, conn := newTestPayments(t, &fakeCheckout{})
	ctx := context.Background()
	owner := Actor{ID: "owner"}
	free, _ := ads.Create(ctx, owner, CampaignInput{Name: "Free", DurationDays: 7})

	if _, err := svc.Confirm(ctx, owner, free.ID, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Confirm: want Validation got=%v", err)
	}
	tx, req, err := svc.ActivateX402(ctx, owner, free.ID, "")
	if !apperr.Is(err, apperr.KindValidation) || tx != nil || req != nil {
		t.Fatalf("ActivateX402: tx=%v req=%v err=%v", tx, req, err)
	}

	var n int64
	conn.Model(&models.Transaction{}).Where("campaign_id = ?", free.ID).Count(&n)
	got, _ := ads.Get(ctx, owner, free.ID)
	if n != 0 || got.Status != models.CampaignDraft {
		t.Fatalf("zero budget campaign changed: transactions=%d status=%s", n, got.Status)
	}
}

func TestActivateX402(t *testing.T) {
	svc, ads, conn := newTestPayments(t, nil)
	ctx := context.Background()
	owner := Actor{ID: "owner"}
	c, _ := ads.Create(ctx, owner, CampaignInput{Name: "Crypto", DailyBudget: 20, DurationDays: 7})

	_, req, err := svc.ActivateX402(ctx, owner, c.ID, "")
	if !apperr.Is(err, apperr.KindPaymentRequired) {
		t.Fatalf("no proof: want PaymentRequired got=%v", err)
	}
	if req == nil || req.Amount != "14000" || req.Recipient != "0xabc" || req.CampaignID != c.ID {
		t.Fatalf("payment request: %+v", req)
	}
	got, _ := ads.Get(ctx, owner, c.ID)
	if got.Status != models.CampaignDraft {
		t.Fatalf("campaign must stay draft without proof: %s", got.Status)
	}

	// 任意非空凭证都会被接受：当前没有签名校验
	tx, _, err := svc.ActivateX402(ctx, owner, c.ID, "not-a-real-signature")
	if err != nil {
		t.Fatalf("with proof: %v", err)
	}
	if tx.Method != models.MethodX402 || tx.Reference != ProofReference("not-a-real-signature") || tx.Amount != 14000 {
		t.Fatalf("x402 transaction: %+v", tx)
	}
	got, _ = ads.Get(ctx, owner, c.ID)
	if got.Status != models.CampaignActive {
		t.Fatalf("status: %s", got.Status)
	}

	if _, _, err := svc.ActivateX402(ctx, owner, c.ID, "not-a-real-signature"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	var n int64
	conn.Model(&models.Transaction{}).Count(&n)
	if n != 1 {
		t.Fatalf("replayed proof must not add a row: %d", n)
	}
}

func TestProofReferenceIsKeccak256(t *testing.T) {
	// keccak256("") 的已知值
	const empty = "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got := ProofReference(""); got != empty {
		t.Fatalf("keccak256(\"\"): got %s", got)
	}
}

func TestX402DisabledBySetting(t *testing.T) {
	svc, ads, _ := newTestPayments(t, nil)
	ctx := context.Background()
	c, _ := ads.Create(ctx, Actor{ID: "owner"}, CampaignInput{Name: "x", DailyBudget: 1, DurationDays: 1})
	svc.settings.Set(ctx, SettingX402Enabled, "false")
	if _, _, err := svc.ActivateX402(ctx, Actor{ID: "owner"}, c.ID, "proof"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("disabled: want Forbidden got=%v", err)
	}
}
