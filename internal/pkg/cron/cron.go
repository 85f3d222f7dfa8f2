package cron

import (
	"context"
	"log"
	"time"

	"github.com/mirostudio/studio_go_server/internal/repository"
	"github.com/mirostudio/studio_go_server/internal/service"
)

const staleReclaimInterval = 5 * time.Minute

// Service 定时清扫：每日额度滚动 + 超时 pending 任务回收。
// 额度滚动本身是惰性的（任何钱包操作前都会先补齐），这里的定时
// 执行只是让长期不活跃用户的展示数据保持新鲜，且幂等可重入。
type Service struct {
	walletService *service.WalletService
	taskService   *service.TaskService
	subRepo       *repository.SubscriptionRepository
	staleAfter    time.Duration
	stopChan      chan struct{}
}

func NewService(
	walletService *service.WalletService,
	taskService *service.TaskService,
	subRepo *repository.SubscriptionRepository,
	staleAfterMinutes int,
) *Service {
	staleAfter := 30 * time.Minute
	if staleAfterMinutes > 0 {
		staleAfter = time.Duration(staleAfterMinutes) * time.Minute
	}

	return &Service{
		walletService: walletService,
		taskService:   taskService,
		subRepo:       subRepo,
		staleAfter:    staleAfter,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runDailyRollover()
	go s.runStaleReclaim()
	log.Println("Cron service started (quota rollover + stale task reclaim)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runDailyRollover 每日 UTC 零点执行额度滚动
func (s *Service) runDailyRollover() {
	now := time.Now().UTC()
	nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	timer := time.NewTimer(nextMidnight.Sub(now))

	for {
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.rolloverAll()
			timer.Reset(24 * time.Hour)
		}
	}
}

// rolloverAll 批量过期到期订阅，并逐个用户补齐日/月池
func (s *Service) rolloverAll() {
	log.Println("Starting quota rollover...")

	today := time.Now().UTC().Truncate(24 * time.Hour)
	expired, err := s.subRepo.ExpireOverdue(today)
	if err != nil {
		log.Printf("Rollover: failed to expire overdue subscriptions: %v", err)
	} else if expired > 0 {
		log.Printf("Rollover: expired %d overdue subscriptions", expired)
	}

	userIDs, err := s.subRepo.ListUsersWithActive()
	if err != nil {
		log.Printf("Rollover: failed to list users: %v", err)
		return
	}

	for _, userID := range userIDs {
		if err := s.walletService.RunRollover(userID); err != nil {
			log.Printf("Rollover: user %d failed: %v", userID, err)
		}
	}
	log.Printf("Quota rollover completed, %d users refreshed", len(userIDs))
}

// runStaleReclaim 定期回收长时间未提交的 pending 任务
func (s *Service) runStaleReclaim() {
	ticker := time.NewTicker(staleReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.reclaimStale()
		}
	}
}

func (s *Service) reclaimStale() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	olderThan := time.Now().Add(-s.staleAfter)
	reclaimed, err := s.taskService.ReconcileStalePending(ctx, olderThan, 100)
	if err != nil {
		log.Printf("Stale reclaim failed: %v", err)
		return
	}
	if reclaimed > 0 {
		log.Printf("Reclaimed %d stale pending tasks", reclaimed)
	}
}

// RunNow 立即执行一次额度滚动（手动触发或测试用）
func (s *Service) RunNow() {
	s.rolloverAll()
	s.reclaimStale()
}
