package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	email := fmt.Sprintf("test_%d@example.com", time.Now().UnixNano())
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	user := &model.User{
		Username:      fmt.Sprintf("testuser_%d", time.Now().UnixNano()%100000),
		Email:         &email,
		PasswordHash:  &passwordHash,
		CreditBalance: 0,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithCreditBalance 设置永久积分
func WithCreditBalance(balance int64) func(*model.User) {
	return func(u *model.User) {
		u.CreditBalance = balance
	}
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// TestSubscription 创建测试订阅授予，默认当天开始、30 天有效、日月池满额
func TestSubscription(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.WalletSubscription)) *model.WalletSubscription {
	t.Helper()

	today := DateUTC(time.Now())
	grant := today
	sub := &model.WalletSubscription{
		UserID:           userID,
		PackageID:        "pro_monthly",
		StartDate:        today,
		EndDate:          today.AddDate(0, 0, 29),
		DailyCredits:     100,
		DailyRemaining:   100,
		MonthlyCredits:   1000,
		MonthlyRemaining: 1000,
		LastGrantDate:    &grant,
		Status:           model.SubscriptionStatusActive,
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithPools 设置日/月池容量与剩余
func WithPools(dailyCredits, dailyRemaining, monthlyCredits, monthlyRemaining int64) func(*model.WalletSubscription) {
	return func(s *model.WalletSubscription) {
		s.DailyCredits = dailyCredits
		s.DailyRemaining = dailyRemaining
		s.MonthlyCredits = monthlyCredits
		s.MonthlyRemaining = monthlyRemaining
	}
}

// WithDates 设置订阅起止日期
func WithDates(start, end time.Time) func(*model.WalletSubscription) {
	return func(s *model.WalletSubscription) {
		s.StartDate = DateUTC(start)
		s.EndDate = DateUTC(end)
	}
}

// WithLastGrant 设置上次日额度发放日期
func WithLastGrant(d time.Time) func(*model.WalletSubscription) {
	return func(s *model.WalletSubscription) {
		grant := DateUTC(d)
		s.LastGrantDate = &grant
	}
}

// WithCycleIndex 设置已完成的月度周期数
func WithCycleIndex(idx int) func(*model.WalletSubscription) {
	return func(s *model.WalletSubscription) {
		s.MonthlyCycleIndex = idx
	}
}

// WithPackage 设置套餐 ID
func WithPackage(packageID string) func(*model.WalletSubscription) {
	return func(s *model.WalletSubscription) {
		s.PackageID = packageID
	}
}

// TestTask 创建测试生成任务
func TestTask(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.GenerationTask)) *model.GenerationTask {
	t.Helper()

	task := &model.GenerationTask{
		UserID:     userID,
		Kind:       model.TaskKindImage,
		Model:      "studio-image-1",
		Prompt:     "a cat in space",
		Status:     model.TaskStatusPending,
		CreditCost: 10,
	}

	for _, opt := range opts {
		opt(task)
	}

	if err := db.Create(task).Error; err != nil {
		t.Fatalf("Failed to create test task: %v", err)
	}

	return task
}

// WithTaskStatus 设置任务状态
func WithTaskStatus(status string) func(*model.GenerationTask) {
	return func(task *model.GenerationTask) {
		task.Status = status
	}
}

// WithProviderTaskID 设置服务商任务 ID
func WithProviderTaskID(id string) func(*model.GenerationTask) {
	return func(task *model.GenerationTask) {
		task.ProviderTaskID = &id
	}
}

// WithTaskCost 设置任务积分与关联扣费流水
func WithTaskCost(cost int64, txnID int64) func(*model.GenerationTask) {
	return func(task *model.GenerationTask) {
		task.CreditCost = cost
		task.CreditTransactionID = txnID
	}
}

// WithKind 设置任务类型
func WithKind(kind string) func(*model.GenerationTask) {
	return func(task *model.GenerationTask) {
		task.Kind = kind
	}
}

// TestRedemptionCode 创建测试兑换码
func TestRedemptionCode(t *testing.T, db *gorm.DB, code string, credits int64, opts ...func(*model.RedemptionCode)) *model.RedemptionCode {
	t.Helper()

	rc := &model.RedemptionCode{
		Code:    code,
		Credits: credits,
	}

	for _, opt := range opts {
		opt(rc)
	}

	if err := db.Create(rc).Error; err != nil {
		t.Fatalf("Failed to create test redemption code: %v", err)
	}

	return rc
}

// WithExpiry 设置兑换码过期时间
func WithExpiry(at time.Time) func(*model.RedemptionCode) {
	return func(rc *model.RedemptionCode) {
		rc.ExpiresAt = &at
	}
}

// WithRedeemedBy 标记兑换码已被使用
func WithRedeemedBy(userID int64) func(*model.RedemptionCode) {
	return func(rc *model.RedemptionCode) {
		rc.RedeemedBy = &userID
		now := time.Now()
		rc.RedeemedAt = &now
	}
}

// DateUTC 截断到 UTC 日历日
func DateUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
