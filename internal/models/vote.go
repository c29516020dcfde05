package models

import (
	"time"
)

// ThreadVote 每个 (thread, user) 至多一条，由应用层保证
type ThreadVote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ThreadID  uint      `gorm:"not null;index" json:"threadId"`
	UserID    string    `gorm:"size:191;not null;index" json:"userId"`
	Value     int       `gorm:"not null" json:"value"` // 1 or -1
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
