package models

import (
	"time"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User 从身份服务同步而来的本地镜像，ID 为外部身份 ID
type User struct {
	ID           string     `gorm:"primaryKey;size:191" json:"id"`
	Email        string     `gorm:"index" json:"email"`
	Username     string     `json:"username"`
	Role         string     `gorm:"size:20;default:'user';not null" json:"role"` // user, admin
	Plan         string     `gorm:"size:20;default:'free'" json:"plan"`
	LastActiveAt *time.Time `json:"lastActiveAt"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
