package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) WithTx(tx *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: tx}
}

func (r *SubscriptionRepository) Create(sub *model.WalletSubscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByID(id int64) (*model.WalletSubscription, error) {
	var sub model.WalletSubscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListActiveByUserID 按消耗顺序返回有效订阅：先到期的在前，同日到期按创建先后
func (r *SubscriptionRepository) ListActiveByUserID(userID int64) ([]*model.WalletSubscription, error) {
	var subs []*model.WalletSubscription
	err := r.db.Where("user_id = ? AND status = ?", userID, model.SubscriptionStatusActive).
		Order("end_date ASC, created_at ASC, id ASC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) ListByUserID(userID int64) ([]*model.WalletSubscription, error) {
	var subs []*model.WalletSubscription
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *SubscriptionRepository) Update(sub *model.WalletSubscription) error {
	return r.db.Save(sub).Error
}

// MarkExpired 将订阅置为过期（active -> expired，不可逆）
func (r *SubscriptionRepository) MarkExpired(id int64) error {
	return r.db.Model(&model.WalletSubscription{}).
		Where("id = ? AND status = ?", id, model.SubscriptionStatusActive).
		Update("status", model.SubscriptionStatusExpired).Error
}

// ExpireOverdue 批量过期截止日期早于 today 的订阅，供定时清扫使用
func (r *SubscriptionRepository) ExpireOverdue(today time.Time) (int64, error) {
	res := r.db.Model(&model.WalletSubscription{}).
		Where("status = ? AND end_date < ?", model.SubscriptionStatusActive, today).
		Update("status", model.SubscriptionStatusExpired)
	return res.RowsAffected, res.Error
}

// ListUsersWithActive 返回存在有效订阅的用户 ID，供清扫任务逐个补齐额度
func (r *SubscriptionRepository) ListUsersWithActive() ([]int64, error) {
	var ids []int64
	err := r.db.Model(&model.WalletSubscription{}).
		Where("status = ?", model.SubscriptionStatusActive).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}
