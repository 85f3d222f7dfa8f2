package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/internal/model"
)

type RedemptionRepository struct {
	db *gorm.DB
}

func NewRedemptionRepository(db *gorm.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

func (r *RedemptionRepository) WithTx(tx *gorm.DB) *RedemptionRepository {
	return &RedemptionRepository{db: tx}
}

func (r *RedemptionRepository) Create(code *model.RedemptionCode) error {
	return r.db.Create(code).Error
}

func (r *RedemptionRepository) GetByCode(code string) (*model.RedemptionCode, error) {
	var rc model.RedemptionCode
	err := r.db.Where("code = ?", code).First(&rc).Error
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// MarkRedeemed 条件更新实现一次性兑换：已被兑换的码返回 false
func (r *RedemptionRepository) MarkRedeemed(id, userID int64) (bool, error) {
	now := time.Now()
	res := r.db.Model(&model.RedemptionCode{}).
		Where("id = ? AND redeemed_by IS NULL", id).
		Updates(map[string]interface{}{
			"redeemed_by": userID,
			"redeemed_at": &now,
		})
	return res.RowsAffected > 0, res.Error
}
