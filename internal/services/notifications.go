package services

import (
	"context"
	"sort"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"

	"gorm.io/gorm"
)

const (
	NotificationReply      = "reply"
	NotificationGeneration = "generation"

	DefaultNotificationWindow = 7 * 24 * time.Hour
)

// Notification 聚合后的通知：同一帖子的回复合并为一条
type Notification struct {
	Kind        string    `json:"kind"`
	ThreadID    uint      `json:"threadId,omitempty"`
	ThreadTitle string    `json:"threadTitle,omitempty"`
	Count       int       `json:"count"`
	LastAuthor  string    `json:"lastAuthor,omitempty"`
	TopicID     uint      `json:"topicId,omitempty"`
	TopicSlug   string    `json:"topicSlug,omitempty"`
	TopicTitle  string    `json:"topicTitle,omitempty"`
	At          time.Time `json:"at"`
}

type NotificationService struct {
	db       *gorm.DB
	log      *logger.Logger
	activity *ActivityService
}

func NewNotificationService(db *gorm.DB, activity *ActivityService, baseLog *logger.Logger) *NotificationService {
	return &NotificationService{db: db, activity: activity, log: baseLog.With("service", "NotificationService")}
}

// ForUser 汇总 since 之后的通知，按时间倒序
func (s *NotificationService) ForUser(ctx context.Context, userID string, since time.Time) ([]Notification, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("sign in to see notifications")
	}
	if since.IsZero() {
		since = time.Now().Add(-DefaultNotificationWindow)
	}

	replies, err := s.replyNotifications(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	generations, err := s.generationNotifications(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	out := append(replies, generations...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

func (s *NotificationService) replyNotifications(ctx context.Context, userID string, since time.Time) ([]Notification, error) {
	var rows []struct {
		ThreadID   uint
		Title      string
		AuthorName string
		CreatedAt  time.Time
	}
	err := s.db.WithContext(ctx).Table("posts").
		Select("posts.thread_id, threads.title, posts.author_name, posts.created_at").
		Joins("JOIN threads ON threads.id = posts.thread_id").
		Where("threads.author_id = ? AND posts.author_id <> ? AND posts.created_at >= ?", userID, userID, since).
		Order("posts.created_at ASC, posts.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}

	byThread := make(map[uint]*Notification)
	var order []uint
	for _, r := range rows {
		n, ok := byThread[r.ThreadID]
		if !ok {
			n = &Notification{Kind: NotificationReply, ThreadID: r.ThreadID, ThreadTitle: r.Title}
			byThread[r.ThreadID] = n
			order = append(order, r.ThreadID)
		}
		n.Count++
		n.LastAuthor = r.AuthorName
		n.At = r.CreatedAt
	}

	out := make([]Notification, 0, len(order))
	for _, id := range order {
		out = append(out, *byThread[id])
	}
	return out, nil
}

// generationNotifications 用户访问过的主题在 since 之后完成的生成
func (s *NotificationService) generationNotifications(ctx context.Context, userID string, since time.Time) ([]Notification, error) {
	visits, err := s.activity.List(ctx, ActivityFilter{Type: models.EventNavigation, UserID: userID, Limit: 500})
	if err != nil {
		return nil, err
	}
	slugs := make(map[string]struct{})
	for i := range visits {
		p, err := s.activity.Decode(&visits[i])
		if err != nil {
			continue
		}
		if nav := p.(*NavigationPayload); nav.TopicSlug != "" {
			slugs[nav.TopicSlug] = struct{}{}
		}
	}
	if len(slugs) == 0 {
		return nil, nil
	}
	slugList := make([]string, 0, len(slugs))
	for slug := range slugs {
		slugList = append(slugList, slug)
	}
	var topics []models.Topic
	if err := s.db.WithContext(ctx).Where("slug IN ?", slugList).Find(&topics).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	visited := make(map[uint]models.Topic, len(topics))
	for _, t := range topics {
		visited[t.ID] = t
	}

	gens, err := s.activity.List(ctx, ActivityFilter{Type: models.EventGeneration, Since: since, Limit: 500})
	if err != nil {
		return nil, err
	}
	// 每个主题只保留最近一次，List 已按时间倒序
	seen := make(map[uint]bool)
	var out []Notification
	for i := range gens {
		p, err := s.activity.Decode(&gens[i])
		if err != nil {
			continue
		}
		gp := p.(*GenerationPayload)
		if gp.Status != string(JobCompleted) || seen[gp.TopicID] {
			continue
		}
		t, ok := visited[gp.TopicID]
		if !ok {
			continue
		}
		seen[gp.TopicID] = true
		out = append(out, Notification{
			Kind:       NotificationGeneration,
			Count:      1,
			TopicID:    t.ID,
			TopicSlug:  t.Slug,
			TopicTitle: t.Title,
			At:         gens[i].CreatedAt,
		})
	}
	return out, nil
}
