package models

import (
	"time"

	"gorm.io/datatypes"
)

type EventType string

const (
	EventSearch     EventType = "SEARCH"
	EventNavigation EventType = "NAVIGATION"
	EventGeneration EventType = "GENERATION"
	EventForum      EventType = "FORUM"
	EventAd         EventType = "AD"
)

// Event 只追加的用户行为日志，Metadata 的结构由 Type 决定
type Event struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    *string        `gorm:"size:191;index" json:"userId"`
	VisitorID *string        `gorm:"size:64;index" json:"visitorId,omitempty"` // 匿名会话 ID，登录前后可关联
	Action    string         `gorm:"size:191;not null" json:"action"`
	Type      EventType      `gorm:"size:32;not null;index" json:"type"`
	Metadata  datatypes.JSON `json:"metadata"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
}
