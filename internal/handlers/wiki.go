package handlers

import (
	"html/template"
	"io"
	"net/http"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/services"
	"wikits/internal/utils"

	"github.com/gin-gonic/gin"
)

const streamHeartbeat = 15 * time.Second

type WikiHandler struct {
	topics   *services.TopicService
	gen      *services.Generator
	activity *services.ActivityService
	settings *services.SettingsService
	log      *logger.Logger
}

func NewWikiHandler(topics *services.TopicService, gen *services.Generator, activity *services.ActivityService, settings *services.SettingsService, log *logger.Logger) *WikiHandler {
	return &WikiHandler{topics: topics, gen: gen, activity: activity, settings: settings, log: log.With("handler", "wiki")}
}

// Topic GET /api/wiki/topics/:slug，不存在时创建存根
func (h *WikiHandler) Topic(c *gin.Context) {
	ctx := c.Request.Context()
	t, _, err := h.topics.GetOrCreateStub(ctx, c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	detail, err := h.topics.Detail(ctx, t)
	if err != nil {
		fail(c, err)
		return
	}
	h.activity.Track(ctx, actorOf(c).ID, "view topic", services.NavigationPayload{Path: "/wiki/" + t.Slug, TopicSlug: t.Slug})
	ok(c, detail)
}

func (h *WikiHandler) Chapter(c *gin.Context) {
	id, valid := paramID(c, "id")
	if !valid {
		return
	}
	ch, err := h.topics.GetChapter(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, ch)
}

type addChapterRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}

func (h *WikiHandler) AddChapter(c *gin.Context) {
	var req addChapterRequest
	if !bindJSON(c, &req) {
		return
	}
	ch, err := h.topics.AddChapter(c.Request.Context(), c.Param("slug"), req.Title)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// Status GET /api/wiki/status?slug，客户端轮询用的指纹
func (h *WikiHandler) Status(c *gin.Context) {
	slug := c.Query("slug")
	if slug == "" {
		fail(c, apperr.Validation("slug is required", nil))
		return
	}
	st, err := h.topics.Status(c.Request.Context(), slug)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, st)
}

type faqRequest struct {
	TopicID  uint   `json:"topicId" binding:"required"`
	Question string `json:"question" binding:"required,max=500"`
}

func (h *WikiHandler) FAQ(c *gin.Context) {
	var req faqRequest
	if !bindJSON(c, &req) {
		return
	}
	faq, err := h.topics.AskFAQ(c.Request.Context(), req.TopicID, req.Question, actorOf(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, faq)
}

type generateRequest struct {
	TopicID   uint             `json:"topicId" binding:"required"`
	Type      services.JobType `json:"type" binding:"omitempty,oneof=syllabus chapter"`
	ChapterID *uint            `json:"chapterId"`
	Force     bool             `json:"force"`
}

// Generate POST /api/wiki/generate，生成中时新任务排队
func (h *WikiHandler) Generate(c *gin.Context) {
	var req generateRequest
	if !bindJSON(c, &req) {
		return
	}
	job, queued, err := h.gen.Start(c.Request.Context(), services.JobSpec{
		TopicID:     req.TopicID,
		Type:        req.Type,
		ChapterID:   req.ChapterID,
		Force:       req.Force,
		RequestedBy: actorOf(c).ID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job, "queued": queued})
}

// Job GET /api/wiki/job[?id=]；每次读取都会补触发无人执行的任务
func (h *WikiHandler) Job(c *gin.Context) {
	h.gen.Kick()
	if id := c.Query("id"); id != "" {
		job, found := h.gen.Jobs().Get(id)
		if !found {
			fail(c, apperr.NotFound("job"))
			return
		}
		ok(c, job)
		return
	}
	ok(c, h.gen.Jobs().Snapshot())
}

// JobStream 以 SSE 推送任务快照，直到没有活动任务
func (h *WikiHandler) JobStream(c *gin.Context) {
	h.gen.Kick()
	jobs := h.gen.Jobs()
	ctx := c.Request.Context()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		changed := jobs.Changed()
		snap := jobs.Snapshot()
		c.SSEvent("job", snap)
		if snap.Active == nil {
			c.SSEvent("done", gin.H{"last": snap.Last})
			return false
		}
		select {
		case <-changed:
			return true
		case <-heartbeat.C:
			return true
		case <-ctx.Done():
			return false
		}
	})
}

type chapterView struct {
	ID       uint
	Title    string
	Order    int
	HTML     template.HTML
	Headings []utils.Heading
	Pending  bool
}

type faqView struct {
	Question string
	Answer   template.HTML
}

// Home GET / 顶层主题目录，不创建任何主题
func (h *WikiHandler) Home(c *gin.Context) {
	ctx := c.Request.Context()
	roots, err := h.topics.Children(ctx, nil)
	if err != nil {
		RenderError(c, apperr.StatusOf(err), apperr.As(err).Error())
		return
	}
	siteName, _ := h.settings.Get(ctx, services.SettingSiteName)
	Render(c, http.StatusOK, "wiki/index.html", gin.H{
		"Title":       siteName,
		"SiteName":    siteName,
		"Roots":       roots,
		"Maintenance": h.settings.Bool(ctx, services.SettingMaintenanceMode),
	})
}

// Page GET /wiki/:slug 服务端渲染的主题页
func (h *WikiHandler) Page(c *gin.Context) {
	ctx := c.Request.Context()
	t, _, err := h.topics.GetOrCreateStub(ctx, c.Param("slug"))
	if err != nil {
		RenderError(c, apperr.StatusOf(err), apperr.As(err).Error())
		return
	}
	detail, err := h.topics.Detail(ctx, t)
	if err != nil {
		RenderError(c, apperr.StatusOf(err), apperr.As(err).Error())
		return
	}

	chapters := make([]chapterView, 0, len(detail.Chapters))
	for _, ch := range detail.Chapters {
		v := chapterView{ID: ch.ID, Title: ch.Title, Order: ch.Order, Pending: ch.Content == nil || *ch.Content == ""}
		if !v.Pending {
			v.HTML = utils.RenderMarkdown(*ch.Content)
			v.Headings = utils.ExtractHeadings(string(v.HTML))
		}
		chapters = append(chapters, v)
	}
	faqs := make([]faqView, 0, len(detail.FAQs))
	for _, f := range detail.FAQs {
		faqs = append(faqs, faqView{Question: f.Question, Answer: utils.RenderMarkdown(f.Answer)})
	}
	var overview template.HTML
	if t.Overview != nil {
		overview = utils.RenderMarkdown(*t.Overview)
	}

	siteName, _ := h.settings.Get(ctx, services.SettingSiteName)
	h.activity.Track(ctx, actorOf(c).ID, "view page", services.NavigationPayload{Path: c.Request.URL.Path, TopicSlug: t.Slug})

	Render(c, http.StatusOK, "wiki/topic.html", gin.H{
		"Title":        t.Title,
		"SiteName":     siteName,
		"Topic":        t,
		"Detail":       detail,
		"Overview":     overview,
		"Chapters":     chapters,
		"FAQs":         faqs,
		"Stub":         t.IsStub(),
		"Maintenance":  h.settings.Bool(ctx, services.SettingMaintenanceMode),
		"PollInterval": h.settings.Int(ctx, services.SettingPollInterval, 5),
	})
}
