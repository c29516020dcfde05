package models

import (
	"time"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSucceeded TransactionStatus = "succeeded"
)

type PaymentMethod string

const (
	MethodStripe PaymentMethod = "stripe"
	MethodX402   PaymentMethod = "x402"
)

// Transaction 每次支付尝试/确认一行
type Transaction struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	UserID     string            `gorm:"size:191;not null;index" json:"userId"`
	CampaignID uint              `gorm:"not null;index" json:"campaignId"`
	Amount     int64             `gorm:"not null" json:"amount"` // 分
	Currency   string            `gorm:"size:16;default:'usd'" json:"currency"`
	Status     TransactionStatus `gorm:"size:20;not null;index" json:"status"`
	Method     PaymentMethod     `gorm:"size:20;not null" json:"method"`
	Reference  string            `gorm:"size:191;index" json:"reference"` // checkout session id / 支付凭证哈希
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
