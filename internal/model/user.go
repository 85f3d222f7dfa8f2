package model

import (
	"time"
)

type User struct {
	ID           int64   `gorm:"primaryKey" json:"id"`
	Username     string  `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email        *string `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	PasswordHash *string `gorm:"size:255" json:"-"`
	AvatarURL    string  `gorm:"size:500" json:"avatar_url"`
	// CreditBalance 永久积分（购买/兑换/管理员发放），不过期
	CreditBalance int64     `gorm:"not null;default:0" json:"credit_balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
