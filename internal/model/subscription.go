package model

import (
	"time"
)

const (
	SubscriptionStatusActive  = "active"
	SubscriptionStatusExpired = "expired"
)

// WalletSubscription 一次付费会员期的积分授予记录。
// 日/月池按固定节奏重置，未用完的额度作废（use-it-or-lose-it）。
type WalletSubscription struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	UserID    int64  `gorm:"not null;index" json:"user_id"`
	PackageID string `gorm:"size:50;not null" json:"package_id"`
	// StartDate/EndDate 均为 UTC 日历日，EndDate 当天仍有效
	StartDate         time.Time  `gorm:"not null" json:"start_date"`
	EndDate           time.Time  `gorm:"not null;index" json:"end_date"`
	DailyCredits      int64      `gorm:"not null" json:"daily_credits"`
	DailyRemaining    int64      `gorm:"not null" json:"daily_remaining"`
	MonthlyCredits    int64      `gorm:"not null" json:"monthly_credits"`
	MonthlyRemaining  int64      `gorm:"not null" json:"monthly_remaining"`
	MonthlyCycleIndex int        `gorm:"not null;default:0" json:"monthly_cycle_index"` // 已完成的 30 天周期数，单调不减
	LastGrantDate     *time.Time `json:"last_grant_date,omitempty"`
	Status            string     `gorm:"size:20;default:active;index" json:"status"` // active, expired
	CreatedAt         time.Time  `json:"created_at"`
}

func (WalletSubscription) TableName() string {
	return "wallet_subscriptions"
}

// Remaining 当前订阅可用积分
func (s *WalletSubscription) Remaining() int64 {
	return s.DailyRemaining + s.MonthlyRemaining
}
