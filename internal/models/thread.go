package models

import (
	"time"
)

type Thread struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"not null" json:"title"`
	Category   string    `gorm:"size:64;default:'general';index" json:"category"`
	TopicID    *uint     `gorm:"index" json:"topicId"` // 为空表示独立讨论
	AuthorID   string    `gorm:"size:191;not null;index" json:"authorId"`
	AuthorName string    `json:"authorName"`
	Tags       []Tag     `gorm:"many2many:thread_tags;" json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// 非数据库字段，用于查询时填充
	ReplyCount int `gorm:"-" json:"replyCount"`
	Score      int `gorm:"-" json:"score"`
}

type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
