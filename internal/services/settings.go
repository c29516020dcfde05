package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
	"wikits/internal/apperr"
	"wikits/internal/logger"
	"wikits/internal/models"
	"wikits/internal/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 设置项键名
const (
	SettingSiteName          = "site_name"
	SettingGenerationEnabled = "generation_enabled"
	SettingAdsEnabled        = "ads_enabled"
	SettingX402Enabled       = "x402_enabled"
	SettingMaintenanceMode   = "maintenance_mode"
	SettingDefaultPageSize   = "default_page_size"
	SettingPollInterval      = "poll_interval_seconds"
)

type SettingDefault struct {
	Value       string
	Description string
}

// DefaultSettings 数据库中没有记录时使用的默认值
var DefaultSettings = map[string]SettingDefault{
	SettingSiteName:          {"Wikits", "Site name shown in page titles"},
	SettingGenerationEnabled: {"true", "Allow starting AI generation jobs"},
	SettingAdsEnabled:        {"true", "Accept ad impression and click tracking"},
	SettingX402Enabled:       {"true", "Allow pay-per-call campaign activation"},
	SettingMaintenanceMode:   {"false", "Show maintenance banner"},
	SettingDefaultPageSize:   {"20", "Default page size for list endpoints"},
	SettingPollInterval:      {"5", "Client status poll interval in seconds"},
}

const settingsCacheTTL = 30 * time.Second

// SettingView 合并默认值后的设置项
type SettingView struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
	IsDefault   bool   `json:"isDefault"`
}

type SettingsService struct {
	db    *gorm.DB
	log   *logger.Logger
	cache *utils.TTLCache[string]
}

func NewSettingsService(db *gorm.DB, baseLog *logger.Logger) *SettingsService {
	return &SettingsService{
		db:    db,
		log:   baseLog.With("service", "SettingsService"),
		cache: utils.NewTTLCache[string](128),
	}
}

// Get 返回设置值；读取失败时退回默认值
func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, nil
	}

	def, hasDefault := DefaultSettings[key]

	var setting models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	switch {
	case err == nil:
		s.cache.Set(key, setting.Value, settingsCacheTTL)
		return setting.Value, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if !hasDefault {
			return "", apperr.NotFound("setting " + key)
		}
		s.cache.Set(key, def.Value, settingsCacheTTL)
		return def.Value, nil
	default:
		if hasDefault {
			s.log.Warn("Setting lookup failed, using default", "key", key, "error", err)
			return def.Value, nil
		}
		return "", apperr.Internal(err)
	}
}

// Bool 解析布尔开关，无法解析时为 false
func (s *SettingsService) Bool(ctx context.Context, key string) bool {
	v, err := s.Get(ctx, key)
	if err != nil {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func (s *SettingsService) Int(ctx context.Context, key string, fallback int) int {
	v, err := s.Get(ctx, key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// All 返回默认值与已存储值的合并结果，按 key 排序
func (s *SettingsService) All(ctx context.Context) ([]SettingView, error) {
	var stored []models.SystemSetting
	if err := s.db.WithContext(ctx).Find(&stored).Error; err != nil {
		return nil, apperr.Internal(err)
	}

	merged := make(map[string]SettingView, len(DefaultSettings)+len(stored))
	for k, d := range DefaultSettings {
		merged[k] = SettingView{Key: k, Value: d.Value, Description: d.Description, IsDefault: true}
	}
	for _, st := range stored {
		desc := st.Description
		if desc == "" {
			desc = DefaultSettings[st.Key].Description
		}
		merged[st.Key] = SettingView{Key: st.Key, Value: st.Value, Description: desc}
	}

	out := make([]SettingView, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Set 按 key 冲突更新（upsert）
func (s *SettingsService) Set(ctx context.Context, key, value string) (*models.SystemSetting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperr.Validation("setting key is required", nil)
	}

	setting := models.SystemSetting{
		Key:         key,
		Value:       value,
		Description: DefaultSettings[key].Description,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.cache.Delete(key)
	s.log.Info("Setting updated", "key", key)
	return &setting, nil
}
