package service

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/internal/model"
	"github.com/mirostudio/studio_go_server/internal/model/dto"
	"github.com/mirostudio/studio_go_server/internal/repository"
)

var (
	ErrUserNotFound        = errors.New("用户不存在")
	ErrInsufficientCredits = errors.New("积分余额不足")
	ErrInvalidAmount       = errors.New("积分数额不合法")
	ErrCodeInvalid         = errors.New("兑换码不存在或已失效")
	ErrCodeRedeemed        = errors.New("兑换码已被使用")
	ErrPackageNotFound     = errors.New("订阅套餐不存在")
)

// WalletService 积分钱包引擎。
//
// 余额由三类池组成：永久积分（users.credit_balance）和每个有效订阅的
// 日池/月池。所有变更操作在单个数据库事务内执行，事务内先对用户行加锁
// （见 UserRepository.GetByIDForUpdate）实现按用户串行化；进程内再叠加
// 一把按用户的互斥锁，覆盖 sqlite 测试路径。锁只保护库内计算窗口，
// 任何外部网络调用都发生在锁外。
type WalletService struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
	subRepo  *repository.SubscriptionRepository
	txnRepo  *repository.TransactionRepository
	redeRepo *repository.RedemptionRepository

	userLocks sync.Map // userID -> *sync.Mutex

	// now 可注入时钟，额度滚动测试用
	now func() time.Time
}

func NewWalletService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	txnRepo *repository.TransactionRepository,
	redeRepo *repository.RedemptionRepository,
) *WalletService {
	return &WalletService{
		db:       db,
		userRepo: userRepo,
		subRepo:  subRepo,
		txnRepo:  txnRepo,
		redeRepo: redeRepo,
		now:      time.Now,
	}
}

// TxnResult 钱包变更操作的结果
type TxnResult struct {
	TransactionID int64 `json:"transaction_id"`
	NewBalance    int64 `json:"new_balance"`
}

// walletState 事务内经过额度滚动后的钱包快照
type walletState struct {
	user *model.User
	subs []*model.WalletSubscription
}

func (w *walletState) total() int64 {
	total := w.user.CreditBalance
	for _, sub := range w.subs {
		total += sub.Remaining()
	}
	return total
}

func (s *WalletService) lockUser(userID int64) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// withWallet 打开事务、锁定用户行、执行额度滚动后回调 fn。
// fn 返回错误时整个事务回滚。
func (s *WalletService) withWallet(userID int64, fn func(tx *gorm.DB, w *walletState) error) error {
	unlock := s.lockUser(userID)
	defer unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.WithTx(tx).GetByIDForUpdate(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		subs, err := s.subRepo.WithTx(tx).ListActiveByUserID(userID)
		if err != nil {
			return err
		}

		subs, err = s.rollover(tx, subs)
		if err != nil {
			return err
		}

		return fn(tx, &walletState{user: user, subs: subs})
	})
}

// GetBalance 全钱包可用余额（先滚动额度再计算）
func (s *WalletService) GetBalance(userID int64) (int64, error) {
	var balance int64
	err := s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		balance = w.total()
		return nil
	})
	return balance, err
}

// GetSummary 钱包总览：总余额与各池明细
func (s *WalletService) GetSummary(userID int64) (*dto.WalletSummary, error) {
	var summary *dto.WalletSummary
	err := s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		summary = &dto.WalletSummary{
			Balance:       w.total(),
			Purchased:     w.user.CreditBalance,
			Subscriptions: make([]*dto.SubscriptionInfo, 0, len(w.subs)),
		}
		for _, sub := range w.subs {
			summary.Subscriptions = append(summary.Subscriptions, &dto.SubscriptionInfo{
				ID:               sub.ID,
				PackageID:        sub.PackageID,
				DailyCredits:     sub.DailyCredits,
				DailyRemaining:   sub.DailyRemaining,
				MonthlyCredits:   sub.MonthlyCredits,
				MonthlyRemaining: sub.MonthlyRemaining,
				StartDate:        dateOnly(sub.StartDate).Format("2006-01-02"),
				EndDate:          dateOnly(sub.EndDate).Format("2006-01-02"),
				Status:           sub.Status,
			})
		}
		return nil
	})
	return summary, err
}

// Deduct 扣减积分。消耗顺序：先订阅池（快到期的订阅优先，同一订阅内
// 先日池后月池），订阅池耗尽后才动用永久积分——订阅积分会过期作废，
// 永久积分是保底储备。扣取来源写入流水 metadata，退款按此原路返还。
// 余额不足时返回 ErrInsufficientCredits，钱包不发生任何变化。
func (s *WalletService) Deduct(userID, amount int64, reason, refType, refID string) (*TxnResult, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var result *TxnResult
	err := s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		total := w.total()
		if total < amount {
			return ErrInsufficientCredits
		}

		subRepo := s.subRepo.WithTx(tx)
		prov := &DeductionProvenance{Version: 2}
		remaining := amount

		for _, sub := range w.subs {
			if remaining == 0 {
				break
			}
			daily := minInt64(sub.DailyRemaining, remaining)
			sub.DailyRemaining -= daily
			remaining -= daily

			monthly := minInt64(sub.MonthlyRemaining, remaining)
			sub.MonthlyRemaining -= monthly
			remaining -= monthly

			if daily > 0 || monthly > 0 {
				prov.Subscriptions = append(prov.Subscriptions, SubscriptionDraw{
					SubscriptionID: sub.ID,
					Daily:          daily,
					Monthly:        monthly,
				})
				if err := subRepo.Update(sub); err != nil {
					return err
				}
			}
		}

		if remaining > 0 {
			prov.Purchased = remaining
			if err := s.userRepo.WithTx(tx).AddCreditBalance(userID, -remaining); err != nil {
				return err
			}
		}

		txn := &model.CreditTransaction{
			UserID:        userID,
			Type:          model.TxnTypeDeduction,
			Amount:        amount,
			BalanceBefore: total,
			BalanceAfter:  total - amount,
			Reason:        reason,
			ReferenceType: refType,
			ReferenceID:   refID,
			Metadata:      prov.Encode(),
		}
		if err := s.txnRepo.WithTx(tx).Create(txn); err != nil {
			return err
		}

		result = &TxnResult{TransactionID: txn.ID, NewBalance: total - amount}
		return nil
	})
	return result, err
}

// Refund 退还积分。给出源流水（显式参数或 reference_type 为
// credit_transaction 的 reference_id）且明细合计与退款金额一致时，
// 按明细把积分放回原池：池子已经滚动或订阅已过期导致放不回去的部分，
// 一律转入永久积分，绝不把某个池撑超上限。明细缺失或对不上时整笔
// 退到永久积分——宁可退到不过期的池，也不丢用户的钱。
func (s *WalletService) Refund(userID, amount int64, reason, refType, refID string, sourceTxnID int64) (*TxnResult, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var result *TxnResult
	err := s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		total := w.total()

		srcID := sourceTxnID
		if srcID == 0 && refType == model.RefTypeCreditTransaction {
			if parsed, err := strconv.ParseInt(refID, 10, 64); err == nil {
				srcID = parsed
			}
		}

		var prov *DeductionProvenance
		if srcID != 0 {
			src, err := s.txnRepo.WithTx(tx).GetByID(srcID)
			if err == nil && src.UserID == userID && src.Type == model.TxnTypeDeduction {
				if parsed, ok := ParseProvenance(src.Metadata); ok && parsed.Total() == amount {
					prov = parsed
				}
			}
		}

		breakdown := &RefundBreakdown{SourceTransactionID: srcID}
		toPurchased := amount

		if prov != nil {
			subRepo := s.subRepo.WithTx(tx)
			subByID := make(map[int64]*model.WalletSubscription, len(w.subs))
			for _, sub := range w.subs {
				subByID[sub.ID] = sub
			}

			toPurchased = prov.Purchased
			for _, draw := range prov.Subscriptions {
				sub, ok := subByID[draw.SubscriptionID]
				if !ok {
					// 订阅已过期，这部分转入永久积分
					toPurchased += draw.Daily + draw.Monthly
					continue
				}

				daily := minInt64(draw.Daily, sub.DailyCredits-sub.DailyRemaining)
				monthly := minInt64(draw.Monthly, sub.MonthlyCredits-sub.MonthlyRemaining)
				sub.DailyRemaining += daily
				sub.MonthlyRemaining += monthly
				toPurchased += draw.Daily - daily + draw.Monthly - monthly

				if daily > 0 || monthly > 0 {
					breakdown.Subscriptions = append(breakdown.Subscriptions, SubscriptionDraw{
						SubscriptionID: sub.ID,
						Daily:          daily,
						Monthly:        monthly,
					})
					if err := subRepo.Update(sub); err != nil {
						return err
					}
				}
			}
		}

		if toPurchased > 0 {
			if err := s.userRepo.WithTx(tx).AddCreditBalance(userID, toPurchased); err != nil {
				return err
			}
		}
		breakdown.Purchased = toPurchased

		txn := &model.CreditTransaction{
			UserID:        userID,
			Type:          model.TxnTypeRefund,
			Amount:        amount,
			BalanceBefore: total,
			BalanceAfter:  total + amount,
			Reason:        reason,
			ReferenceType: refType,
			ReferenceID:   refID,
			Metadata:      breakdown.Encode(),
		}
		if err := s.txnRepo.WithTx(tx).Create(txn); err != nil {
			return err
		}

		result = &TxnResult{TransactionID: txn.ID, NewBalance: total + amount}
		return nil
	})
	return result, err
}

// AddCredits 发放永久积分（兑换码、订单、管理员调账）
func (s *WalletService) AddCredits(userID, amount int64, reason, refType, refID string) (*TxnResult, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	var result *TxnResult
	err := s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		total := w.total()

		if err := s.userRepo.WithTx(tx).AddCreditBalance(userID, amount); err != nil {
			return err
		}

		txn := &model.CreditTransaction{
			UserID:        userID,
			Type:          model.TxnTypeAddition,
			Amount:        amount,
			BalanceBefore: total,
			BalanceAfter:  total + amount,
			Reason:        reason,
			ReferenceType: refType,
			ReferenceID:   refID,
		}
		if err := s.txnRepo.WithTx(tx).Create(txn); err != nil {
			return err
		}

		result = &TxnResult{TransactionID: txn.ID, NewBalance: total + amount}
		return nil
	})
	return result, err
}

// GetHistory 积分流水，最新在前
func (s *WalletService) GetHistory(userID int64, limit, offset int) ([]*model.CreditTransaction, int64, error) {
	if _, err := s.userRepo.GetByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrUserNotFound
		}
		return nil, 0, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.txnRepo.ListByUserID(userID, limit, offset)
}

// Redeem 兑换码兑换：一次性核销 + 发放永久积分，同一事务完成
func (s *WalletService) Redeem(userID int64, code string) (*TxnResult, int64, error) {
	var result *TxnResult
	var credits int64

	err := s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		redeRepo := s.redeRepo.WithTx(tx)

		rc, err := redeRepo.GetByCode(code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeInvalid
			}
			return err
		}
		if rc.ExpiresAt != nil && rc.ExpiresAt.Before(s.now()) {
			return ErrCodeInvalid
		}

		ok, err := redeRepo.MarkRedeemed(rc.ID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeRedeemed
		}

		total := w.total()
		if err := s.userRepo.WithTx(tx).AddCreditBalance(userID, rc.Credits); err != nil {
			return err
		}

		txn := &model.CreditTransaction{
			UserID:        userID,
			Type:          model.TxnTypeAddition,
			Amount:        rc.Credits,
			BalanceBefore: total,
			BalanceAfter:  total + rc.Credits,
			Reason:        "兑换码兑换",
			ReferenceType: model.RefTypeRedemptionCode,
			ReferenceID:   rc.Code,
		}
		if err := s.txnRepo.WithTx(tx).Create(txn); err != nil {
			return err
		}

		credits = rc.Credits
		result = &TxnResult{TransactionID: txn.ID, NewBalance: total + rc.Credits}
		return nil
	})
	return result, credits, err
}

// ConfirmSubscription 订阅购买确认：按套餐创建一条有效授予记录。
// 日/月池初始即为满额，当天记为已发放。
func (s *WalletService) ConfirmSubscription(userID int64, pkg *SubscriptionPackage, orderID string) (*model.WalletSubscription, error) {
	var created *model.WalletSubscription
	err := s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		today := dateOnly(s.now())
		grant := today
		sub := &model.WalletSubscription{
			UserID:           userID,
			PackageID:        pkg.ID,
			StartDate:        today,
			EndDate:          today.AddDate(0, 0, pkg.DurationDays-1), // 含当天
			DailyCredits:     pkg.DailyCredits,
			DailyRemaining:   pkg.DailyCredits,
			MonthlyCredits:   pkg.MonthlyCredits,
			MonthlyRemaining: pkg.MonthlyCredits,
			LastGrantDate:    &grant,
			Status:           model.SubscriptionStatusActive,
		}
		if err := s.subRepo.WithTx(tx).Create(sub); err != nil {
			return err
		}
		created = sub
		return nil
	})
	return created, err
}

// SubscriptionPackage 订阅套餐参数（来自配置）
type SubscriptionPackage struct {
	ID             string
	DurationDays   int
	DailyCredits   int64
	MonthlyCredits int64
}

// RunRollover 主动对单个用户执行一次额度滚动（清扫任务用，只为展示新鲜度）
func (s *WalletService) RunRollover(userID int64) error {
	return s.withWallet(userID, func(tx *gorm.DB, w *walletState) error {
		return nil
	})
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
