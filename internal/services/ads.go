package services

import (
	"context"
	"sort"
	"strings"
	"wikits/internal/apperr"
	"wikits/internal/db"
	"wikits/internal/logger"
	"wikits/internal/metrics"
	"wikits/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CampaignInput struct {
	Name            string   `json:"name" binding:"required,max=120"`
	Headline        string   `json:"headline" binding:"max=120"`
	Body            string   `json:"body" binding:"max=2000"`
	DestinationURL  string   `json:"destinationUrl" binding:"omitempty,url"`
	CallToAction    string   `json:"callToAction" binding:"max=64"`
	Images          []string `json:"images" binding:"omitempty,max=10,dive,url"`
	TargetCountries []string `json:"targetCountries" binding:"omitempty,dive,len=2"`
	DailyBudget     float64  `json:"dailyBudget" binding:"gte=0"`
	DurationDays    int      `json:"durationDays" binding:"gte=0,lte=365"`
}

// CampaignPatch 仅更新非空字段；Status 直接写入，不校验状态迁移
type CampaignPatch struct {
	Name            *string                `json:"name" binding:"omitempty,max=120"`
	Status          *models.CampaignStatus `json:"status"`
	Headline        *string                `json:"headline" binding:"omitempty,max=120"`
	Body            *string                `json:"body" binding:"omitempty,max=2000"`
	DestinationURL  *string                `json:"destinationUrl" binding:"omitempty,url"`
	CallToAction    *string                `json:"callToAction" binding:"omitempty,max=64"`
	Images          []string               `json:"images" binding:"omitempty,max=10,dive,url"`
	TargetCountries []string               `json:"targetCountries" binding:"omitempty,dive,len=2"`
	DailyBudget     *float64               `json:"dailyBudget" binding:"omitempty,gte=0"`
	DurationDays    *int                   `json:"durationDays" binding:"omitempty,gte=0,lte=365"`
}

type TrackInput struct {
	CampaignID uint               `json:"campaignId" binding:"required"`
	Type       models.AdEventType `json:"type" binding:"required,oneof=impression click"`
	Country    string             `json:"country" binding:"omitempty,max=8"`
	Device     string             `json:"device" binding:"omitempty,max=32"`
}

// ReconcileScheduler 追踪后按需安排对账
type ReconcileScheduler interface {
	Schedule(campaignID uint)
}

type AdsService struct {
	db        *gorm.DB
	log       *logger.Logger
	settings  *SettingsService
	scheduler ReconcileScheduler
}

func NewAdsService(db *gorm.DB, settings *SettingsService, baseLog *logger.Logger) *AdsService {
	return &AdsService{db: db, settings: settings, log: baseLog.With("service", "AdsService")}
}

func (s *AdsService) SetScheduler(r ReconcileScheduler) {
	s.scheduler = r
}

func validStatus(st models.CampaignStatus) bool {
	switch st {
	case models.CampaignDraft, models.CampaignActive, models.CampaignPaused, models.CampaignCompleted:
		return true
	}
	return false
}

func normalizeCountries(in []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(in))
	for _, c := range in {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *AdsService) List(ctx context.Context, actor Actor) ([]models.Campaign, error) {
	if actor.ID == "" {
		return nil, apperr.Unauthorized("sign in required")
	}
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if !actor.Admin {
		q = q.Where("user_id = ?", actor.ID)
	}
	campaigns := []models.Campaign{}
	if err := q.Find(&campaigns).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return campaigns, nil
}

// Get 所有者或管理员可见
func (s *AdsService) Get(ctx context.Context, actor Actor, id uint) (*models.Campaign, error) {
	if actor.ID == "" {
		return nil, apperr.Unauthorized("sign in required")
	}
	var c models.Campaign
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFoundOr(err, "campaign")
	}
	if !actor.CanModify(c.UserID) {
		return nil, apperr.Forbidden("campaign belongs to another user")
	}
	return &c, nil
}

func (s *AdsService) Create(ctx context.Context, actor Actor, in CampaignInput) (*models.Campaign, error) {
	if actor.ID == "" {
		return nil, apperr.Unauthorized("sign in required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Validation("name is required", nil)
	}
	c := &models.Campaign{
		UserID:          actor.ID,
		Name:            strings.TrimSpace(in.Name),
		Status:          models.CampaignDraft,
		Headline:        in.Headline,
		Body:            in.Body,
		DestinationURL:  in.DestinationURL,
		CallToAction:    in.CallToAction,
		Images:          datatypes.JSONSlice[string](append([]string{}, in.Images...)),
		TargetCountries: normalizeCountries(in.TargetCountries),
		DailyBudget:     in.DailyBudget,
		DurationDays:    in.DurationDays,
		Metrics:         datatypes.NewJSONType(models.CampaignMetrics{}),
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.Info("Campaign created", "campaign_id", c.ID, "user_id", actor.ID)
	return c, nil
}

func (s *AdsService) Update(ctx context.Context, actor Actor, id uint, p CampaignPatch) (*models.Campaign, error) {
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, apperr.Validation("name cannot be empty", nil)
		}
		updates["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Status != nil {
		if !validStatus(*p.Status) {
			return nil, apperr.Validation("invalid status", map[string]string{"status": string(*p.Status)})
		}
		updates["status"] = *p.Status
	}
	if p.Headline != nil {
		updates["headline"] = *p.Headline
	}
	if p.Body != nil {
		updates["body"] = *p.Body
	}
	if p.DestinationURL != nil {
		updates["destination_url"] = *p.DestinationURL
	}
	if p.CallToAction != nil {
		updates["call_to_action"] = *p.CallToAction
	}
	if p.Images != nil {
		updates["images"] = datatypes.JSONSlice[string](p.Images)
	}
	if p.TargetCountries != nil {
		updates["target_countries"] = normalizeCountries(p.TargetCountries)
	}
	if p.DailyBudget != nil {
		updates["daily_budget"] = *p.DailyBudget
	}
	if p.DurationDays != nil {
		updates["duration_days"] = *p.DurationDays
	}
	if len(updates) == 0 {
		return c, nil
	}
	if err := s.db.WithContext(ctx).Model(c).Updates(updates).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	return s.Get(ctx, actor, id)
}

// Delete 删除活动及其事件日志，交易记录保留
func (s *AdsService) Delete(ctx context.Context, actor Actor, id uint) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&models.AdEvent{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Campaign{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("campaign")
		}
		return nil
	})
	return wrapErr(err)
}

// metricsKey 事件类型到 metrics JSON 字段的固定映射
func metricsKey(t models.AdEventType) (string, bool) {
	switch t {
	case models.AdImpression:
		return "impressions", true
	case models.AdClick:
		return "clicks", true
	}
	return "", false
}

// incrementExpr 原子地给 metrics 中的计数加一，字段缺失时按 0 处理
func incrementExpr(conn *gorm.DB, key string) string {
	if db.IsPostgres(conn) {
		return "UPDATE campaigns SET metrics = jsonb_set(COALESCE(metrics, '{}'::jsonb), '{" + key + "}', " +
			"to_jsonb(COALESCE((metrics->>'" + key + "')::bigint, 0) + 1)) WHERE id = ?"
	}
	return "UPDATE campaigns SET metrics = json_set(COALESCE(metrics, '{}'), '$." + key + "', " +
		"COALESCE(json_extract(metrics, '$." + key + "'), 0) + 1) WHERE id = ?"
}

// Track 写入事件并递增缓存计数，两步在同一事务内
func (s *AdsService) Track(ctx context.Context, in TrackInput) error {
	if !s.settings.Bool(ctx, SettingAdsEnabled) {
		return apperr.New(apperr.KindForbidden, "ads_disabled", "ad tracking is disabled")
	}
	key, ok := metricsKey(in.Type)
	if !ok {
		return apperr.Validation("type must be impression or click", nil)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Campaign{}).Where("id = ?", in.CampaignID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("campaign")
		}
		ev := models.AdEvent{
			CampaignID: in.CampaignID,
			Type:       in.Type,
			Country:    strings.ToUpper(strings.TrimSpace(in.Country)),
			Device:     in.Device,
		}
		if err := tx.Create(&ev).Error; err != nil {
			return err
		}
		return tx.Exec(incrementExpr(tx, key), in.CampaignID).Error
	})
	if err != nil {
		return wrapErr(err)
	}

	metrics.AdEvents.WithLabelValues(string(in.Type)).Inc()
	if s.scheduler != nil {
		s.scheduler.Schedule(in.CampaignID)
	}
	return nil
}

// Serve 选择一个面向该国家的投放中活动，曝光最少者优先
func (s *AdsService) Serve(ctx context.Context, country string) (*models.Campaign, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	var active []models.Campaign
	if err := s.db.WithContext(ctx).Where("status = ?", models.CampaignActive).Order("id ASC").Find(&active).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	var eligible []models.Campaign
	for _, c := range active {
		if c.Targets(country) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil, apperr.NotFound("campaign")
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Metrics.Data().Impressions < eligible[j].Metrics.Data().Impressions
	})
	return &eligible[0], nil
}

// reconcileExpr 用一条语句从事件日志与成功交易重算 metrics，读与写之间不留窗口
func reconcileExpr(conn *gorm.DB) string {
	build := "json_object"
	if db.IsPostgres(conn) {
		build = "jsonb_build_object"
	}
	return "UPDATE campaigns SET metrics = " + build + "(" +
		"'impressions', (SELECT COUNT(*) FROM ad_events WHERE ad_events.campaign_id = campaigns.id AND ad_events.type = ?), " +
		"'clicks', (SELECT COUNT(*) FROM ad_events WHERE ad_events.campaign_id = campaigns.id AND ad_events.type = ?), " +
		"'spend', (SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE transactions.campaign_id = campaigns.id AND transactions.status = ?) / 100.0" +
		") WHERE id = ?"
}

// ReconcileMetrics 从事件日志与成功交易重新计算 metrics 缓存
func (s *AdsService) ReconcileMetrics(ctx context.Context, campaignID uint) (*models.CampaignMetrics, error) {
	conn := s.db.WithContext(ctx)
	var c models.Campaign
	if err := conn.Select("id").First(&c, campaignID).Error; err != nil {
		return nil, notFoundOr(err, "campaign")
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		if db.IsPostgres(tx) {
			// 行锁与 Track 的递增互斥；锁释放前提交的事件会被下一条语句看到
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&models.Campaign{}, campaignID).Error; err != nil {
				return err
			}
		}
		res := tx.Exec(reconcileExpr(tx), models.AdImpression, models.AdClick, models.TransactionSucceeded, campaignID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("campaign")
		}
		return tx.First(&c, campaignID).Error
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	m := c.Metrics.Data()
	s.log.Debug("Campaign metrics reconciled", "campaign_id", campaignID, "impressions", m.Impressions, "clicks", m.Clicks)
	metrics.MetricsReconciled.Inc()
	return &m, nil
}

// ReconcileAll 对全部活动执行对账，返回处理数量
func (s *AdsService) ReconcileAll(ctx context.Context) (int, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Campaign{}).Pluck("id", &ids).Error; err != nil {
		return 0, apperr.Internal(err)
	}
	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := s.ReconcileMetrics(ctx, id); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}
