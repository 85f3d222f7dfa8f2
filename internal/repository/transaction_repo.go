package repository

import (
	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/internal/model"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create 写入一条流水。流水是审计日志，创建后没有任何更新路径。
func (r *TransactionRepository) Create(txn *model.CreditTransaction) error {
	return r.db.Create(txn).Error
}

func (r *TransactionRepository) GetByID(id int64) (*model.CreditTransaction, error) {
	var txn model.CreditTransaction
	err := r.db.Where("id = ?", id).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListByUserID 按时间倒序（最新在前）返回用户流水
func (r *TransactionRepository) ListByUserID(userID int64, limit, offset int) ([]*model.CreditTransaction, int64, error) {
	var total int64
	if err := r.db.Model(&model.CreditTransaction{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []*model.CreditTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	return txns, total, err
}
