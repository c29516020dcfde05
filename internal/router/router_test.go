package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"wikits/internal/config"
	"wikits/internal/db"
	"wikits/internal/logger"
	"wikits/internal/middleware"
	"wikits/internal/models"
	"wikits/internal/services"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const testSecret = "router-test-secret"

type fakeLLM struct {
	mu     sync.Mutex
	text   string
	chunks []string
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return f.text, nil
}

func (f *fakeLLM) StreamText(ctx context.Context, system, prompt string, onDelta func(string)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var full strings.Builder
	for _, c := range f.chunks {
		full.WriteString(c)
		onDelta(c)
	}
	return full.String(), nil
}

type fakeCheckout struct{}

func (fakeCheckout) CreateSession(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutSession, error) {
	return &services.CheckoutSession{ID: "cs_router_1", URL: "https://checkout.example/cs_router_1"}, nil
}

type testApp struct {
	r    *gin.Engine
	conn *gorm.DB
	deps Deps
	llm  *fakeLLM
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:           "test",
		SessionSecret: "session-secret",
		SiteURL:       "https://wikits.example",
		CORSOrigins:   []string{"*"},
		JWTSecret:     testSecret,
		AdminUserIDs:  []string{"admin_1"},
		X402Recipient: "0xRecipient",
		X402Network:   "base-sepolia",
		X402Asset:     "USDC",
	}
	if mutate != nil {
		mutate(cfg)
	}

	conn, err := db.Open(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := logger.NewNop()
	llm := &fakeLLM{text: "An answer."}
	settings := services.NewSettingsService(conn, log)
	activity := services.NewActivityService(conn, log)
	topics := services.NewTopicService(conn, llm, log)
	generator := services.NewGenerator(conn, llm, services.NewJobStore(), activity, settings, log)
	ads := services.NewAdsService(conn, settings, log)
	reconciler := services.NewMetricsReconciler(ads, time.Hour, log)
	ads.SetScheduler(reconciler)
	auth, err := middleware.NewAuthenticator(cfg, log)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	deps := Deps{
		Config:        cfg,
		Log:           log,
		Auth:          auth,
		Settings:      settings,
		Activity:      activity,
		Topics:        topics,
		Generator:     generator,
		Seed:          services.NewSeedService(conn, log),
		Forum:         services.NewForumService(conn, activity, log),
		Ads:           ads,
		Payments:      services.NewPaymentService(conn, ads, settings, fakeCheckout{}, services.NewUnverifiedProofVerifier(log), services.X402Config{Recipient: cfg.X402Recipient, Network: cfg.X402Network, Asset: cfg.X402Asset}, cfg.SiteURL, log),
		Reconciler:    reconciler,
		Users:         services.NewUserService(conn, log),
		Admin:         services.NewAdminService(conn, generator.Jobs(), settings, log),
		Search:        services.NewSearchService(conn, activity, log),
		Export:        services.NewExportService(conn, log),
		Notifications: services.NewNotificationService(conn, activity, log),
	}

	r := gin.New()
	tmpl := multitemplate.NewRenderer()
	tmpl.AddFromString("wiki/topic.html", `<h1>{{.Topic.Title}}</h1>{{range .Chapters}}<h2>{{.Title}}</h2>{{.HTML}}{{end}}{{range .FAQs}}<dl><dt>{{.Question}}</dt><dd>{{.Answer}}</dd></dl>{{end}}`)
	tmpl.AddFromString("wiki/index.html", `{{range .Roots}}<a href="/wiki/{{.Slug}}">{{.Title}}</a>{{end}}`)
	tmpl.AddFromString("error.html", `<p>{{.Error}}</p>`)
	r.HTMLRender = tmpl
	Use(r, deps)
	RegisterRoutes(r, deps)
	t.Cleanup(generator.Wait)

	return &testApp{r: r, conn: conn, deps: deps, llm: llm}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      sub,
		"username": sub,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func (a *testApp) do(t *testing.T, method, path, user string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func (a *testApp) createCampaign(t *testing.T, owner string, budget float64, days int) models.Campaign {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/ads/campaigns", owner, map[string]interface{}{
		"name":         "Spring launch",
		"headline":     "Learn graphs",
		"dailyBudget":  budget,
		"durationDays": days,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create campaign: want=201 got=%d body=%s", w.Code, w.Body.String())
	}
	var c models.Campaign
	decode(t, w, &c)
	return c
}

func TestX402ChallengeThenActivation(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.createCampaign(t, "owner_1", 20, 7)
	path := fmt.Sprintf("/api/ads/campaigns/%d/activate/x402", c.ID)

	w := app.do(t, http.MethodPost, path, "owner_1", nil)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("no proof: want=402 got=%d", w.Code)
	}
	var challenge struct {
		Error          middleware.ErrorBody     `json:"error"`
		PaymentRequest services.PaymentRequest `json:"paymentRequest"`
	}
	decode(t, w, &challenge)
	if challenge.PaymentRequest.Amount != "14000" || challenge.PaymentRequest.CampaignID != c.ID {
		t.Fatalf("paymentRequest: %+v", challenge.PaymentRequest)
	}
	if challenge.Error.Code != "payment_required" || challenge.PaymentRequest.Recipient != "0xRecipient" {
		t.Fatalf("challenge: %+v", challenge)
	}

	// 任意非空凭证都会被接受：凭证校验尚未实现
	w = app.do(t, http.MethodPost, path, "owner_1", nil, "X-PAYMENT", "not-a-real-proof")
	if w.Code != http.StatusOK {
		t.Fatalf("with proof: want=200 got=%d body=%s", w.Code, w.Body.String())
	}
	var saved models.Campaign
	app.conn.First(&saved, c.ID)
	if saved.Status != models.CampaignActive {
		t.Fatalf("status: want=active got=%s", saved.Status)
	}
	var txs []models.Transaction
	app.conn.Where("campaign_id = ?", c.ID).Find(&txs)
	if len(txs) != 1 || txs[0].Method != models.MethodX402 || txs[0].Amount != 14000 {
		t.Fatalf("transactions: %+v", txs)
	}

	if w := app.do(t, http.MethodPost, path, "someone_else", nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-owner: want=403 got=%d", w.Code)
	}
}

func TestConfirmRecordsSingleTransaction(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.createCampaign(t, "owner_1", 2, 7)
	path := fmt.Sprintf("/api/ads/campaigns/%d/activate/confirm", c.ID)

	for i := 0; i < 2; i++ {
		if w := app.do(t, http.MethodPost, path, "owner_1", nil); w.Code != http.StatusOK {
			t.Fatalf("confirm %d: want=200 got=%d body=%s", i, w.Code, w.Body.String())
		}
	}
	var txs []models.Transaction
	app.conn.Where("campaign_id = ?", c.ID).Find(&txs)
	if len(txs) != 1 || txs[0].Amount != 1400 || txs[0].Status != models.TransactionSucceeded {
		t.Fatalf("transactions: %+v", txs)
	}

	w := app.do(t, http.MethodPost, fmt.Sprintf("/api/ads/campaigns/%d/checkout", c.ID), "owner_1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "cs_router_1") {
		t.Fatalf("checkout: %d %s", w.Code, w.Body.String())
	}
}

func TestTrackingConvergesWithEventLog(t *testing.T) {
	app := newTestApp(t, nil)
	c := app.createCampaign(t, "owner_1", 5, 3)

	send := func(kind string, n int) {
		for i := 0; i < n; i++ {
			w := app.do(t, http.MethodPost, "/api/ads/track", "", map[string]interface{}{
				"campaignId": c.ID, "type": kind, "country": "US", "device": "desktop",
			})
			if w.Code != http.StatusNoContent {
				t.Fatalf("track %s: want=204 got=%d body=%s", kind, w.Code, w.Body.String())
			}
		}
	}
	send("impression", 3)
	send("click", 2)

	var impressions int64
	app.conn.Model(&models.AdEvent{}).Where("campaign_id = ? AND type = ?", c.ID, models.AdImpression).Count(&impressions)
	var saved models.Campaign
	app.conn.First(&saved, c.ID)
	m := saved.Metrics.Data()
	if impressions != 3 || m.Impressions != 3 || m.Clicks != 2 {
		t.Fatalf("impressions=%d metrics=%+v", impressions, m)
	}

	w := app.do(t, http.MethodPost, "/api/ads/track", "", map[string]interface{}{"campaignId": c.ID, "type": "hover"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad type: want=400 got=%d", w.Code)
	}
}

func TestForumDeleteAndVote(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodPost, "/api/threads", "author_1", map[string]interface{}{
		"title": "How do B-trees split?", "content": "First post", "tags": []string{"databases"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create thread: want=201 got=%d body=%s", w.Code, w.Body.String())
	}
	var thread models.Thread
	decode(t, w, &thread)

	w = app.do(t, http.MethodPost, fmt.Sprintf("/api/threads/%d/posts", thread.ID), "author_1", map[string]string{"content": "reply"})
	if w.Code != http.StatusCreated {
		t.Fatalf("reply: want=201 got=%d", w.Code)
	}
	var post models.Post
	decode(t, w, &post)
	postPath := fmt.Sprintf("/api/posts/%d", post.ID)

	if w := app.do(t, http.MethodDelete, postPath, "intruder", nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-author delete: want=403 got=%d", w.Code)
	}
	var count int64
	app.conn.Model(&models.Post{}).Where("id = ?", post.ID).Count(&count)
	if count != 1 {
		t.Fatalf("post removed by non-author")
	}
	if w := app.do(t, http.MethodDelete, postPath, "admin_1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("admin delete: want=204 got=%d", w.Code)
	}
	if w := app.do(t, http.MethodDelete, postPath, "admin_1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: want=404 got=%d", w.Code)
	}

	votePath := fmt.Sprintf("/api/threads/%d/vote", thread.ID)
	var res services.VoteResult
	decode(t, app.do(t, http.MethodPost, votePath, "voter", map[string]int{"value": 1}), &res)
	decode(t, app.do(t, http.MethodPost, votePath, "voter", map[string]int{"value": -1}), &res)
	if res.Score != -1 || res.Vote != -1 {
		t.Fatalf("flip: %+v", res)
	}
	var votes int64
	app.conn.Model(&models.ThreadVote{}).Where("thread_id = ?", thread.ID).Count(&votes)
	if votes != 1 {
		t.Fatalf("votes: want=1 got=%d", votes)
	}

	w = app.do(t, http.MethodPost, "/api/threads", "author_1", map[string]string{"content": "no title"})
	var invalid struct {
		Error struct {
			Details []middleware.FieldError `json:"details"`
		} `json:"error"`
	}
	decode(t, w, &invalid)
	if w.Code != http.StatusBadRequest || len(invalid.Error.Details) == 0 || invalid.Error.Details[0].Field != "Title" {
		t.Fatalf("validation: %d %s", w.Code, w.Body.String())
	}

	if w := app.do(t, http.MethodPost, "/api/threads", "", map[string]string{"title": "x", "content": "y"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: want=401 got=%d", w.Code)
	}
}

func TestTopicStubAndStatus(t *testing.T) {
	app := newTestApp(t, nil)

	var first, second services.TopicDetail
	decode(t, app.do(t, http.MethodGet, "/api/wiki/topics/quantum-computing", "", nil), &first)
	decode(t, app.do(t, http.MethodGet, "/api/wiki/topics/quantum-computing", "", nil), &second)
	if first.Topic == nil || second.Topic == nil || first.Topic.ID != second.Topic.ID || first.Topic.Title != "Quantum Computing" {
		t.Fatalf("stub: %+v %+v", first.Topic, second.Topic)
	}
	var topics int64
	app.conn.Model(&models.Topic{}).Count(&topics)
	if topics != 1 {
		t.Fatalf("topics: want=1 got=%d", topics)
	}

	var st services.TopicStatus
	w := app.do(t, http.MethodGet, "/api/wiki/status?slug=quantum-computing", "", nil)
	decode(t, w, &st)
	if w.Code != http.StatusOK || st.HasSyllabus || st.ChapterCount != 0 {
		t.Fatalf("status: %d %+v", w.Code, st)
	}
	if w := app.do(t, http.MethodGet, "/api/wiki/status", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("missing slug: want=400 got=%d", w.Code)
	}
	if w := app.do(t, http.MethodGet, "/api/wiki/status?slug=nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown slug: want=404 got=%d", w.Code)
	}

	w = app.do(t, http.MethodPost, "/api/wiki/faq", "reader", map[string]interface{}{"topicId": first.Topic.ID, "question": "What is a qubit?"})
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), "An answer.") {
		t.Fatalf("faq: %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, http.MethodGet, "/wiki/quantum-computing", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<h1>Quantum Computing</h1>") {
		t.Fatalf("page: %d %s", w.Code, w.Body.String())
	}
}

func TestGenerationJobLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	app.llm.chunks = []string{`{"title":"Rust","overview":"A systems language.",`, `"chapters":[{"title":"Ownership"}],"related":[]}`}
	topic := models.Topic{Title: "Rust", Slug: "rust"}
	app.conn.Create(&topic)

	w := app.do(t, http.MethodPost, "/api/wiki/generate", "", map[string]interface{}{"topicId": topic.ID})
	if w.Code != http.StatusAccepted {
		t.Fatalf("generate: want=202 got=%d body=%s", w.Code, w.Body.String())
	}
	app.deps.Generator.Wait()

	var snap services.JobSnapshot
	decode(t, app.do(t, http.MethodGet, "/api/wiki/job", "", nil), &snap)
	if snap.Active != nil || snap.Last == nil || snap.Last.Status != services.JobCompleted {
		t.Fatalf("snapshot: %+v", snap)
	}

	srv := httptest.NewServer(app.r)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/wiki/job/stream")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "event:job") || !strings.Contains(string(body), "event:done") {
		t.Fatalf("stream body: %s", body)
	}

	if _, err := app.deps.Settings.Set(context.Background(), services.SettingGenerationEnabled, "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if w := app.do(t, http.MethodPost, "/api/wiki/generate", "", map[string]interface{}{"topicId": topic.ID}); w.Code != http.StatusForbidden {
		t.Fatalf("disabled: want=403 got=%d", w.Code)
	}
}

func TestAdminSurface(t *testing.T) {
	app := newTestApp(t, nil)
	app.do(t, http.MethodGet, "/api/search?q=graph", "member", nil)

	if w := app.do(t, http.MethodGet, "/api/admin/stats", "member", nil); w.Code != http.StatusForbidden {
		t.Fatalf("member: want=403 got=%d", w.Code)
	}

	var status services.SystemStatus
	decode(t, app.do(t, http.MethodGet, "/api/admin/status", "admin_1", nil), &status)
	if status.Status != services.StatusOperational {
		t.Fatalf("status: %+v", status)
	}

	var events []models.Event
	decode(t, app.do(t, http.MethodGet, "/api/admin/activity?type=search", "admin_1", nil), &events)
	if len(events) != 1 {
		t.Fatalf("activity: %+v", events)
	}

	w := app.do(t, http.MethodPut, "/api/admin/settings/site_name", "admin_1", map[string]string{"value": "Atlas"})
	if w.Code != http.StatusOK {
		t.Fatalf("set setting: %d %s", w.Code, w.Body.String())
	}
	if got, err := app.deps.Settings.Get(context.Background(), services.SettingSiteName); err != nil || got != "Atlas" {
		t.Fatalf("site_name: want=Atlas got=%q err=%v", got, err)
	}

	var users services.UserPage
	decode(t, app.do(t, http.MethodGet, "/api/admin/users", "admin_1", nil), &users)
	if users.Total != 1 || users.Items[0].ID != "admin_1" || users.Items[0].Role != models.RoleAdmin {
		t.Fatalf("synced users: %+v", users)
	}

	var export services.Export
	w = app.do(t, http.MethodGet, "/api/export", "admin_1", nil)
	decode(t, w, &export)
	if export.Metadata.ExportedBy != "admin_1" || export.Metadata.System != "Wikits" || export.Metadata.Version != "1.0" {
		t.Fatalf("export metadata: %+v", export.Metadata)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "wikits-export-") {
		t.Fatalf("content disposition: %q", w.Header().Get("Content-Disposition"))
	}
	if w := app.do(t, http.MethodGet, "/api/export-activity", "member", nil); w.Code != http.StatusForbidden {
		t.Fatalf("member export: want=403 got=%d", w.Code)
	}
}

func TestSeedRefusedInProduction(t *testing.T) {
	prod := newTestApp(t, func(c *config.Config) { c.Env = "production" })
	if w := prod.do(t, http.MethodGet, "/api/seed", "", nil); w.Code != http.StatusForbidden {
		t.Fatalf("production seed: want=403 got=%d", w.Code)
	}

	dev := newTestApp(t, nil)
	var res services.SeedResult
	w := dev.do(t, http.MethodGet, "/api/seed", "", nil)
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Topics == 0 {
		t.Fatalf("dev seed: %d %s", w.Code, w.Body.String())
	}
	var roots []services.TopicNode
	decode(t, dev.do(t, http.MethodGet, "/api/topics/nodes", "", nil), &roots)
	if len(roots) == 0 {
		t.Fatalf("expected seeded root topics")
	}
}

func TestSEOAndMe(t *testing.T) {
	app := newTestApp(t, nil)
	overview := "Sorting puts items in order.\n\nSecond paragraph."
	app.conn.Create(&models.Topic{Title: "Sorting", Slug: "sorting", Overview: &overview})
	app.conn.Create(&models.Topic{Title: "Heaps", Slug: "heaps"})

	sitemap := app.do(t, http.MethodGet, "/sitemap.xml", "", nil).Body.String()
	if !strings.Contains(sitemap, "https://wikits.example/wiki/sorting") || strings.Contains(sitemap, "/wiki/heaps") {
		t.Fatalf("sitemap: %s", sitemap)
	}
	feed := app.do(t, http.MethodGet, "/feed.xml", "", nil).Body.String()
	if !strings.Contains(feed, "<title>Sorting</title>") || !strings.Contains(feed, "Sorting puts items in order.") {
		t.Fatalf("feed: %s", feed)
	}
	if robots := app.do(t, http.MethodGet, "/robots.txt", "", nil).Body.String(); !strings.Contains(robots, "Sitemap: https://wikits.example/sitemap.xml") {
		t.Fatalf("robots: %s", robots)
	}

	var me struct {
		User  models.User `json:"user"`
		Admin bool        `json:"admin"`
	}
	decode(t, app.do(t, http.MethodGet, "/api/me", "admin_1", nil), &me)
	if me.User.ID != "admin_1" || !me.Admin {
		t.Fatalf("me: %+v", me)
	}
	if w := app.do(t, http.MethodGet, "/api/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous me: want=401 got=%d", w.Code)
	}
}

func TestAnonymousActivityCarriesVisitor(t *testing.T) {
	app := newTestApp(t, nil)

	first := httptest.NewRecorder()
	app.r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/wiki/topics/heaps", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("topic: want=200 got=%d", first.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=heap", nil)
	for _, ck := range first.Result().Cookies() {
		req.AddCookie(ck)
	}
	app.r.ServeHTTP(httptest.NewRecorder(), req)

	var events []models.Event
	app.conn.Order("id").Find(&events)
	if len(events) != 2 {
		t.Fatalf("events: want=2 got=%d", len(events))
	}
	for _, ev := range events {
		if ev.UserID != nil || ev.VisitorID == nil || *ev.VisitorID == "" {
			t.Fatalf("event %s: user=%v visitor=%v", ev.Type, ev.UserID, ev.VisitorID)
		}
	}
	if *events[0].VisitorID != *events[1].VisitorID {
		t.Fatalf("visitor changed across requests: %s -> %s", *events[0].VisitorID, *events[1].VisitorID)
	}

	var byVisitor []models.Event
	decode(t, app.do(t, http.MethodGet, "/api/admin/activity?visitorId="+*events[0].VisitorID, "admin_1", nil), &byVisitor)
	if len(byVisitor) != 2 {
		t.Fatalf("admin filter by visitor: %d", len(byVisitor))
	}
}

func TestHomeListsRootsWithoutCreatingTopics(t *testing.T) {
	app := newTestApp(t, nil)
	root := models.Topic{Title: "Mathematics", Slug: "mathematics"}
	app.conn.Create(&root)
	app.conn.Create(&models.Topic{Title: "Algebra", Slug: "algebra", ParentID: &root.ID})
	app.conn.Create(&models.FAQ{TopicID: root.ID, Question: "Why?", Answer: "Because **proofs** matter."})

	w := app.do(t, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `href="/wiki/mathematics"`) || strings.Contains(w.Body.String(), "Algebra") {
		t.Fatalf("home: %d %s", w.Code, w.Body.String())
	}
	var n int64
	app.conn.Model(&models.Topic{}).Count(&n)
	if n != 2 {
		t.Fatalf("home must not create topics: count=%d", n)
	}

	page := app.do(t, http.MethodGet, "/wiki/mathematics", "", nil).Body.String()
	if !strings.Contains(page, "<strong>proofs</strong>") {
		t.Fatalf("faq answer not rendered as markdown: %s", page)
	}
}
