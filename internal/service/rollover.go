package service

import (
	"time"

	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/internal/model"
)

// 月度额度按固定 30 天周期重置（非自然月）。周期边界相对订阅开始日推算，
// 与时区无关，属于既定计费口径，不要改成日历月。
const monthlyCycleDays = 30

// dateOnly 截断到 UTC 日历日
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// rollover 钱包额度滚动：过期清理 + 日/月额度补齐。
// 在每次钱包操作的事务内执行，追平到 today 之后重复调用是幂等的。
// 返回仍然有效的订阅（保持消耗顺序）。
func (s *WalletService) rollover(tx *gorm.DB, subs []*model.WalletSubscription) ([]*model.WalletSubscription, error) {
	today := dateOnly(s.now())
	subRepo := s.subRepo.WithTx(tx)

	kept := subs[:0]
	for _, sub := range subs {
		// EndDate 当天仍有效，次日起过期
		if dateOnly(sub.EndDate).Before(today) {
			if err := subRepo.MarkExpired(sub.ID); err != nil {
				return nil, err
			}
			continue
		}

		changed := false

		// 日额度：重置到满额，前一天剩余作废
		if sub.LastGrantDate == nil || dateOnly(*sub.LastGrantDate).Before(today) {
			sub.DailyRemaining = sub.DailyCredits
			grant := today
			sub.LastGrantDate = &grant
			changed = true
		}

		// 月额度：跨过 30 天周期边界时重置
		cycle := completedCycles(sub.StartDate, today)
		if cycle > sub.MonthlyCycleIndex {
			sub.MonthlyRemaining = sub.MonthlyCredits
			sub.MonthlyCycleIndex = cycle
			changed = true
		}

		if changed {
			if err := subRepo.Update(sub); err != nil {
				return nil, err
			}
		}
		kept = append(kept, sub)
	}

	return kept, nil
}

// completedCycles 自订阅开始日起已完成的 30 天周期数
func completedCycles(startDate, today time.Time) int {
	days := int(today.Sub(dateOnly(startDate)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days / monthlyCycleDays
}
