package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityPayload 事件元数据，每种事件类型对应一个结构
type ActivityPayload interface {
	EventType() models.EventType
}

type SearchPayload struct {
	Query   string `json:"query"`
	Results int    `json:"results"`
}

type NavigationPayload struct {
	Path      string `json:"path"`
	TopicSlug string `json:"topicSlug,omitempty"`
}

type GenerationPayload struct {
	TopicID   uint   `json:"topicId"`
	Kind      string `json:"kind"`
	ChapterID *uint  `json:"chapterId,omitempty"`
	Status    string `json:"status"`
	JobID     string `json:"jobId"`
}

type ForumPayload struct {
	ThreadID uint   `json:"threadId"`
	PostID   *uint  `json:"postId,omitempty"`
	Verb     string `json:"verb"`
}

type AdPayload struct {
	CampaignID uint   `json:"campaignId"`
	Verb       string `json:"verb"`
}

func (SearchPayload) EventType() models.EventType     { return models.EventSearch }
func (NavigationPayload) EventType() models.EventType { return models.EventNavigation }
func (GenerationPayload) EventType() models.EventType { return models.EventGeneration }
func (ForumPayload) EventType() models.EventType      { return models.EventForum }
func (AdPayload) EventType() models.EventType         { return models.EventAd }

// DecodePayload 按事件类型解析元数据，未知类型报错
func DecodePayload(t models.EventType, raw []byte) (ActivityPayload, error) {
	var p ActivityPayload
	switch t {
	case models.EventSearch:
		p = &SearchPayload{}
	case models.EventNavigation:
		p = &NavigationPayload{}
	case models.EventGeneration:
		p = &GenerationPayload{}
	case models.EventForum:
		p = &ForumPayload{}
	case models.EventAd:
		p = &AdPayload{}
	default:
		return nil, apperr.Validation(fmt.Sprintf("unknown event type %q", t), nil)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, apperr.Validation("invalid metadata for "+string(t), err.Error())
	}
	return p, nil
}

type ActivityFilter struct {
	Type      models.EventType
	UserID    string
	VisitorID string
	Since     time.Time
	Limit     int
}

type visitorKey struct{}

// WithVisitor 把会话访客 ID 放进 ctx，Record 会一并写入
func WithVisitor(ctx context.Context, visitorID string) context.Context {
	if visitorID == "" {
		return ctx
	}
	return context.WithValue(ctx, visitorKey{}, visitorID)
}

func VisitorFrom(ctx context.Context) string {
	id, _ := ctx.Value(visitorKey{}).(string)
	return id
}

type ActivityService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityService(db *gorm.DB, baseLog *logger.Logger) *ActivityService {
	return &ActivityService{db: db, log: baseLog.With("service", "ActivityService")}
}

// Record 追加一条事件
func (s *ActivityService) Record(ctx context.Context, userID string, action string, payload ActivityPayload) (*models.Event, error) {
	if payload == nil {
		return nil, apperr.Validation("event payload is required", nil)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	ev := &models.Event{
		Action:   action,
		Type:     payload.EventType(),
		Metadata: datatypes.JSON(raw),
	}
	if userID != "" {
		ev.UserID = &userID
	}
	if visitor := VisitorFrom(ctx); visitor != "" {
		ev.VisitorID = &visitor
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return ev, nil
}

// Track 记录事件，失败只写日志，不影响调用方
func (s *ActivityService) Track(ctx context.Context, userID string, action string, payload ActivityPayload) {
	if _, err := s.Record(ctx, userID, action, payload); err != nil {
		s.log.Warn("Failed to record activity", "action", action, "error", err)
	}
}

func (s *ActivityService) List(ctx context.Context, f ActivityFilter) ([]models.Event, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&models.Event{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.VisitorID != "" {
		q = q.Where("visitor_id = ?", f.VisitorID)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}

	var events []models.Event
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}

func (s *ActivityService) Decode(ev *models.Event) (ActivityPayload, error) {
	return DecodePayload(ev.Type, ev.Metadata)
}
