package services

import (
	"context"
	"time"
	"wikits/internal/logger"
	"wikits/internal/models"

	"gorm.io/gorm"
)

const (
	StatusOperational = "Operational"
	StatusDegraded    = "Degraded"
)

type AdminStats struct {
	Users           int64 `json:"users"`
	Topics          int64 `json:"topics"`
	GeneratedTopics int64 `json:"generatedTopics"`
	Chapters        int64 `json:"chapters"`
	Threads         int64 `json:"threads"`
	Posts           int64 `json:"posts"`
	Campaigns       int64 `json:"campaigns"`
	ActiveCampaigns int64 `json:"activeCampaigns"`
	Events          int64 `json:"events"`
	RevenueCents    int64 `json:"revenueCents"`
}

type GenerationStatus struct {
	Active *Job `json:"active"`
	Queued int  `json:"queued"`
}

type SystemStatus struct {
	Status     string           `json:"status"`
	Database   string           `json:"database"`
	Generation GenerationStatus `json:"generation"`
	Flags      map[string]bool  `json:"flags"`
	CheckedAt  time.Time        `json:"checkedAt"`
}

type AdminService struct {
	db       *gorm.DB
	log      *logger.Logger
	jobs     *JobStore
	settings *SettingsService
}

func NewAdminService(db *gorm.DB, jobs *JobStore, settings *SettingsService, baseLog *logger.Logger) *AdminService {
	return &AdminService{db: db, jobs: jobs, settings: settings, log: baseLog.With("service", "AdminService")}
}

func (s *AdminService) Stats(ctx context.Context) (*AdminStats, error) {
	conn := s.db.WithContext(ctx)
	st := &AdminStats{}
	counts := []struct {
		dst   *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&st.Users, &models.User{}, "", nil},
		{&st.Topics, &models.Topic{}, "", nil},
		{&st.GeneratedTopics, &models.Topic{}, "overview IS NOT NULL", nil},
		{&st.Chapters, &models.Chapter{}, "", nil},
		{&st.Threads, &models.Thread{}, "", nil},
		{&st.Posts, &models.Post{}, "", nil},
		{&st.Campaigns, &models.Campaign{}, "", nil},
		{&st.ActiveCampaigns, &models.Campaign{}, "status = ?", []interface{}{models.CampaignActive}},
		{&st.Events, &models.Event{}, "", nil},
	}
	for _, c := range counts {
		q := conn.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, wrapErr(err)
		}
	}
	if err := conn.Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ?", models.TransactionSucceeded).
		Scan(&st.RevenueCents).Error; err != nil {
		return nil, wrapErr(err)
	}
	return st, nil
}

// Status 数据库不可用时返回 Degraded，而不是报错
func (s *AdminService) Status(ctx context.Context) SystemStatus {
	st := SystemStatus{Status: StatusOperational, Database: "ok", CheckedAt: time.Now()}

	sqlDB, err := s.db.DB()
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = sqlDB.PingContext(pingCtx)
		cancel()
	}
	if err == nil {
		var n int64
		err = s.db.WithContext(ctx).Model(&models.SystemSetting{}).Count(&n).Error
	}
	if err != nil {
		s.log.Warn("Database health check failed", "error", err)
		st.Status = StatusDegraded
		st.Database = "unreachable"
	}

	snap := s.jobs.Snapshot()
	st.Generation = GenerationStatus{Active: snap.Active, Queued: len(snap.Queue)}
	st.Flags = map[string]bool{
		SettingGenerationEnabled: s.settings.Bool(ctx, SettingGenerationEnabled),
		SettingAdsEnabled:        s.settings.Bool(ctx, SettingAdsEnabled),
		SettingX402Enabled:       s.settings.Bool(ctx, SettingX402Enabled),
		SettingMaintenanceMode:   s.settings.Bool(ctx, SettingMaintenanceMode),
	}
	return st
}
