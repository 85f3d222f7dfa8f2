package model

import (
	"time"
)

// RedemptionCode 兑换码，一次性使用，兑换后积分计入永久积分
type RedemptionCode struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	Code       string     `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Credits    int64      `gorm:"not null" json:"credits"`
	RedeemedBy *int64     `gorm:"index" json:"redeemed_by,omitempty"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (RedemptionCode) TableName() string {
	return "redemption_codes"
}
