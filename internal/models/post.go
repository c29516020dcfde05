package models

import (
	"time"
)

type Post struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ThreadID   uint      `gorm:"not null;index" json:"threadId"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	AuthorID   string    `gorm:"size:191;not null;index" json:"authorId"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}
