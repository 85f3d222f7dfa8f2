package model

import (
	"time"
)

// 流水类型
const (
	TxnTypeDeduction = "deduction"
	TxnTypeAddition  = "addition"
	TxnTypeRefund    = "refund"
)

// 流水关联对象类型
const (
	RefTypeGenerationTask    = "generation_task"
	RefTypeRedemptionCode    = "redemption_code"
	RefTypeSubscriptionOrder = "subscription_order"
	RefTypeCreditTransaction = "credit_transaction"
	RefTypeAdmin             = "admin"
)

// CreditTransaction 积分流水，追加写入，落库后不可变更。
// BalanceBefore/BalanceAfter 记录的是全钱包余额（永久积分 + 所有订阅池）。
// Metadata 为扣费来源明细（见 service.DeductionProvenance），退款按明细原路返还。
type CreditTransaction struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	UserID        int64     `gorm:"not null;index" json:"user_id"`
	Type          string    `gorm:"size:20;not null;index" json:"type"`
	Amount        int64     `gorm:"not null" json:"amount"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	Reason        string    `gorm:"size:200" json:"reason"`
	ReferenceType string    `gorm:"size:50;index" json:"reference_type,omitempty"`
	ReferenceID   string    `gorm:"size:100;index" json:"reference_id,omitempty"`
	Metadata      string    `gorm:"type:text" json:"-"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (CreditTransaction) TableName() string {
	return "credit_transactions"
}
