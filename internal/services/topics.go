package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"
	"wikits/internal/utils"

	"gorm.io/gorm"
)

// TopicNode 目录树节点，HasChildren 为真表示“文件夹”
type TopicNode struct {
	models.Topic
	ChildCount  int64 `json:"childCount"`
	HasChildren bool  `json:"hasChildren"`
}

type TopicPage struct {
	Items      []models.Topic `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// TopicStatus 轻量指纹，客户端轮询比较后决定是否刷新
type TopicStatus struct {
	ChapterCount      int64 `json:"chapterCount"`
	GeneratedChapters int64 `json:"generatedChapters"`
	ChildrenCount     int64 `json:"childrenCount"`
	HasSyllabus       bool  `json:"hasSyllabus"`
}

type TopicDetail struct {
	Topic         *models.Topic         `json:"topic"`
	Parent        *models.Topic         `json:"parent,omitempty"`
	Chapters      []models.Chapter      `json:"chapters"`
	Children      []TopicNode           `json:"children"`
	Relationships []models.Relationship `json:"relationships"`
	Related       []models.Topic        `json:"related"`
	FAQs          []models.FAQ          `json:"faqs"`
}

type GraphNode struct {
	ID    uint   `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Icon  string `json:"icon"`
	Stub  bool   `json:"stub"`
}

type GraphEdge struct {
	Source uint                    `json:"source"`
	Target uint                    `json:"target"`
	Type   models.RelationshipType `json:"type"`
}

type TopicGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type TopicListFilter struct {
	Query     string
	ParentID  *uint
	RootsOnly bool
	Page      utils.Pagination
}

type TopicService struct {
	db  *gorm.DB
	log *logger.Logger
	llm TextGenerator
}

func NewTopicService(db *gorm.DB, llm TextGenerator, baseLog *logger.Logger) *TopicService {
	return &TopicService{db: db, llm: llm, log: baseLog.With("service", "TopicService")}
}

func (s *TopicService) GetBySlug(ctx context.Context, slug string) (*models.Topic, error) {
	return findTopicBySlug(s.db.WithContext(ctx), utils.Slugify(slug))
}

func (s *TopicService) GetByID(ctx context.Context, id uint) (*models.Topic, error) {
	var t models.Topic
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("topic")
		}
		return nil, apperr.Internal(err)
	}
	return &t, nil
}

// GetOrCreateStub 按 slug 读取主题，不存在时创建存根；重复调用返回同一行
func (s *TopicService) GetOrCreateStub(ctx context.Context, slug string) (*models.Topic, bool, error) {
	return getOrCreateStub(s.db.WithContext(ctx), slug)
}

func findTopicBySlug(tx *gorm.DB, slug string) (*models.Topic, error) {
	if slug == "" {
		return nil, apperr.NotFound("topic")
	}
	var t models.Topic
	if err := tx.Where("slug = ?", slug).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("topic")
		}
		return nil, apperr.Internal(err)
	}
	return &t, nil
}

// getOrCreateStub 可在事务内调用
func getOrCreateStub(tx *gorm.DB, rawSlug string) (*models.Topic, bool, error) {
	slug := utils.Slugify(rawSlug)
	if slug == "" {
		return nil, false, apperr.Validation("slug is required", nil)
	}

	t, err := findTopicBySlug(tx, slug)
	if err == nil {
		return t, false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, false, err
	}

	stub := &models.Topic{Title: utils.TitleFromSlug(slug), Slug: slug}
	if err := tx.Create(stub).Error; err != nil {
		// 并发创建时唯一约束冲突，重新读取
		if existing, rerr := findTopicBySlug(tx, slug); rerr == nil {
			return existing, false, nil
		}
		return nil, false, apperr.Internal(err)
	}
	return stub, true, nil
}

// Children 直接子节点：文件夹优先，其次 Order，最后按标题字母序
func (s *TopicService) Children(ctx context.Context, parentID *uint) ([]TopicNode, error) {
	q := s.db.WithContext(ctx).Model(&models.Topic{})
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	var topics []models.Topic
	if err := q.Find(&topics).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	counts, err := s.childCounts(ctx, topicIDs(topics))
	if err != nil {
		return nil, err
	}

	nodes := make([]TopicNode, len(topics))
	for i, t := range topics {
		nodes[i] = TopicNode{Topic: t, ChildCount: counts[t.ID], HasChildren: counts[t.ID] > 0}
	}
	SortTopicNodes(nodes)
	return nodes, nil
}

func SortTopicNodes(nodes []TopicNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.HasChildren != b.HasChildren {
			return a.HasChildren
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
}

func (s *TopicService) childCounts(ctx context.Context, ids []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ParentID uint
		N        int64
	}
	err := s.db.WithContext(ctx).Model(&models.Topic{}).
		Select("parent_id, COUNT(*) AS n").
		Where("parent_id IN ?", ids).
		Group("parent_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	for _, r := range rows {
		out[r.ParentID] = r.N
	}
	return out, nil
}

func topicIDs(topics []models.Topic) []uint {
	ids := make([]uint, len(topics))
	for i, t := range topics {
		ids[i] = t.ID
	}
	return ids
}

// List 分页列表，标题大小写不敏感匹配
func (s *TopicService) List(ctx context.Context, f TopicListFilter) (*TopicPage, error) {
	q := s.db.WithContext(ctx).Model(&models.Topic{})
	if term := strings.TrimSpace(f.Query); term != "" {
		q = q.Where("LOWER(title) LIKE LOWER(?)", "%"+term+"%")
	}
	switch {
	case f.ParentID != nil:
		q = q.Where("parent_id = ?", *f.ParentID)
	case f.RootsOnly:
		q = q.Where("parent_id IS NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	var items []models.Topic
	if err := q.Order("sort_order ASC, title ASC").Offset(f.Page.Offset).Limit(f.Page.Limit).Find(&items).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return &TopicPage{
		Items:      items,
		Total:      total,
		Page:       f.Page.Page,
		Limit:      f.Page.Limit,
		TotalPages: utils.TotalPages(total, f.Page.Limit),
	}, nil
}

func (s *TopicService) Status(ctx context.Context, slug string) (*TopicStatus, error) {
	t, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	st := &TopicStatus{HasSyllabus: !t.IsStub()}
	conn := s.db.WithContext(ctx)
	if err := conn.Model(&models.Chapter{}).Where("topic_id = ?", t.ID).Count(&st.ChapterCount).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := conn.Model(&models.Chapter{}).Where("topic_id = ? AND content IS NOT NULL AND content <> ''", t.ID).Count(&st.GeneratedChapters).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if err := conn.Model(&models.Topic{}).Where("parent_id = ?", t.ID).Count(&st.ChildrenCount).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return st, nil
}

// Detail 主题页所需的全部数据
func (s *TopicService) Detail(ctx context.Context, t *models.Topic) (*TopicDetail, error) {
	conn := s.db.WithContext(ctx)
	d := &TopicDetail{Topic: t}

	if t.ParentID != nil {
		var parent models.Topic
		if err := conn.First(&parent, *t.ParentID).Error; err == nil {
			d.Parent = &parent
		}
	}
	if err := conn.Where("topic_id = ?", t.ID).Order("sort_order ASC, id ASC").Find(&d.Chapters).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	children, err := s.Children(ctx, &t.ID)
	if err != nil {
		return nil, err
	}
	d.Children = children

	if err := conn.Where("source_topic_id = ?", t.ID).Find(&d.Relationships).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	if len(d.Relationships) > 0 {
		ids := make([]uint, len(d.Relationships))
		for i, r := range d.Relationships {
			ids[i] = r.TargetTopicID
		}
		if err := conn.Where("id IN ?", ids).Order("title ASC").Find(&d.Related).Error; err != nil {
			return nil, apperr.Internal(err)
		}
	}
	if err := conn.Where("topic_id = ?", t.ID).Order("created_at DESC").Find(&d.FAQs).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return d, nil
}

func (s *TopicService) GetChapter(ctx context.Context, id uint) (*models.Chapter, error) {
	var ch models.Chapter
	if err := s.db.WithContext(ctx).First(&ch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("chapter")
		}
		return nil, apperr.Internal(err)
	}
	return &ch, nil
}

// Graph 主题及其出入边构成的知识图谱
func (s *TopicService) Graph(ctx context.Context, slug string) (*TopicGraph, error) {
	t, err := s.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	conn := s.db.WithContext(ctx)

	var rels []models.Relationship
	if err := conn.Where("source_topic_id = ? OR target_topic_id = ?", t.ID, t.ID).Find(&rels).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	ids := map[uint]struct{}{t.ID: {}}
	g := &TopicGraph{Edges: make([]GraphEdge, 0, len(rels))}
	for _, r := range rels {
		ids[r.SourceTopicID] = struct{}{}
		ids[r.TargetTopicID] = struct{}{}
		g.Edges = append(g.Edges, GraphEdge{Source: r.SourceTopicID, Target: r.TargetTopicID, Type: r.Type})
	}
	idList := make([]uint, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	var topics []models.Topic
	if err := conn.Where("id IN ?", idList).Order("id ASC").Find(&topics).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	g.Nodes = make([]GraphNode, len(topics))
	for i, n := range topics {
		g.Nodes[i] = GraphNode{ID: n.ID, Slug: n.Slug, Title: n.Title, Icon: n.Icon, Stub: n.IsStub()}
	}
	return g, nil
}

// AddChapter 在大纲末尾追加章节，并创建待生成的章节占位
func (s *TopicService) AddChapter(ctx context.Context, slug, title string) (*models.Chapter, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("chapter title is required", nil)
	}

	var chapter models.Chapter
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := findTopicBySlug(tx, utils.Slugify(slug))
		if err != nil {
			return err
		}
		order := 1
		for _, e := range t.Syllabus {
			if e.Order >= order {
				order = e.Order + 1
			}
		}
		syllabus := append(t.Syllabus, models.SyllabusEntry{Title: title, Order: order})
		if err := tx.Model(t).Update("syllabus", syllabus).Error; err != nil {
			return err
		}
		chapter = models.Chapter{TopicID: t.ID, Title: title, Order: order}
		return tx.Create(&chapter).Error
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return &chapter, nil
}

const faqSystemPrompt = "You are an encyclopedia editor. Answer the reader's question about the topic accurately in concise markdown (at most three short paragraphs)."

// AskFAQ 调用模型回答问题并保存问答
func (s *TopicService) AskFAQ(ctx context.Context, topicID uint, question string, askedBy string) (*models.FAQ, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Validation("question is required", nil)
	}
	t, err := s.GetByID(ctx, topicID)
	if err != nil {
		return nil, err
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Topic: %s\n", t.Title)
	if t.Overview != nil && *t.Overview != "" {
		fmt.Fprintf(&prompt, "Overview: %s\n", *t.Overview)
	}
	fmt.Fprintf(&prompt, "\nQuestion: %s", question)

	answer, err := s.llm.GenerateText(ctx, faqSystemPrompt, prompt.String())
	if err != nil {
		s.log.Warn("FAQ generation failed", "topic_id", topicID, "error", err)
		return nil, err
	}

	faq := &models.FAQ{TopicID: t.ID, Question: question, Answer: answer}
	if askedBy != "" {
		faq.AskedBy = &askedBy
	}
	if err := s.db.WithContext(ctx).Create(faq).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return faq, nil
}

// Recent 最近更新的主题；generatedOnly 时排除存根
func (s *TopicService) Recent(ctx context.Context, limit int, generatedOnly bool) ([]models.Topic, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("updated_at DESC, id DESC").Limit(limit)
	if generatedOnly {
		q = q.Where("overview IS NOT NULL AND overview <> ''")
	}
	var topics []models.Topic
	if err := q.Find(&topics).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return topics, nil
}
