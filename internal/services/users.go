package services

import (
	"context"
	"strings"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"
	"wikits/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor 当前请求的身份
type Actor struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Admin    bool   `json:"admin"`
}

func (a Actor) DisplayName() string {
	if a.Username != "" {
		return a.Username
	}
	if i := strings.IndexByte(a.Email, '@'); i > 0 {
		return a.Email[:i]
	}
	return "anonymous"
}

// CanModify 作者本人或管理员
func (a Actor) CanModify(ownerID string) bool {
	return a.Admin || (a.ID != "" && a.ID == ownerID)
}

type UserPage struct {
	Items      []models.User `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

type UserService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserService(db *gorm.DB, baseLog *logger.Logger) *UserService {
	return &UserService{db: db, log: baseLog.With("service", "UserService")}
}

// SyncUser 把身份服务中的用户 upsert 到本地
func (s *UserService) SyncUser(ctx context.Context, a Actor) (*models.User, error) {
	if a.ID == "" {
		return nil, apperr.Unauthorized("sign in required")
	}
	now := time.Now()
	role := models.RoleUser
	if a.Admin {
		role = models.RoleAdmin
	}
	u := models.User{
		ID:           a.ID,
		Email:        a.Email,
		Username:     a.DisplayName(),
		Role:         role,
		LastActiveAt: &now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "role", "last_active_at", "updated_at"}),
	}).Create(&u).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.Get(ctx, a.ID)
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &u, nil
}

func (s *UserService) List(ctx context.Context, q string, page utils.Pagination) (*UserPage, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if term := strings.TrimSpace(q); term != "" {
		like := "%" + term + "%"
		query = query.Where("LOWER(email) LIKE LOWER(?) OR LOWER(username) LIKE LOWER(?)", like, like)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	var users []models.User
	if err := query.Order("last_active_at DESC, created_at DESC").Offset(page.Offset).Limit(page.Limit).Find(&users).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return &UserPage{Items: users, Total: total, Page: page.Page, Limit: page.Limit, TotalPages: utils.TotalPages(total, page.Limit)}, nil
}
