package models

import (
	"math"
	"time"

	"gorm.io/datatypes"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// CampaignMetrics 由 AdEvent 聚合而来的反规范化缓存
type CampaignMetrics struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
}

type Campaign struct {
	ID              uint                                `gorm:"primaryKey" json:"id"`
	UserID          string                              `gorm:"size:191;not null;index" json:"userId"`
	Name            string                              `gorm:"not null" json:"name"`
	Status          CampaignStatus                      `gorm:"size:20;default:'draft';index" json:"status"`
	Headline        string                              `json:"headline"`
	Body            string                              `gorm:"type:text" json:"body"`
	DestinationURL  string                              `json:"destinationUrl"`
	CallToAction    string                              `gorm:"size:64" json:"callToAction"`
	Images          datatypes.JSONSlice[string]         `json:"images"`
	TargetCountries datatypes.JSONSlice[string]         `json:"targetCountries"`
	DailyBudget     float64                             `json:"dailyBudget"`
	DurationDays    int                                 `json:"durationDays"`
	Metrics         datatypes.JSONType[CampaignMetrics] `json:"metrics"`
	CreatedAt       time.Time                           `json:"createdAt"`
	UpdatedAt       time.Time                           `json:"updatedAt"`
}

// TotalCents 投放总预算（分）= dailyBudget × durationDays × 100
func (c *Campaign) TotalCents() int64 {
	return int64(math.Round(c.DailyBudget * float64(c.DurationDays) * 100))
}

// Targets 判断活动是否面向该国家；未设置定向时面向全部
func (c *Campaign) Targets(country string) bool {
	if len(c.TargetCountries) == 0 || country == "" {
		return true
	}
	for _, tc := range c.TargetCountries {
		if tc == country {
			return true
		}
	}
	return false
}

type AdEventType string

const (
	AdImpression AdEventType = "impression"
	AdClick      AdEventType = "click"
)

// AdEvent 不可变的曝光/点击日志，是 Metrics 的事实来源
type AdEvent struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	CampaignID uint        `gorm:"not null;index" json:"campaignId"`
	Type       AdEventType `gorm:"size:16;not null;index" json:"type"`
	Country    string      `gorm:"size:8" json:"country"`
	Device     string      `gorm:"size:32" json:"device"`
	CreatedAt  time.Time   `gorm:"index" json:"createdAt"`
}
