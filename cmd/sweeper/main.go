package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/database"
	"github.com/mirostudio/studio_go_server/internal/pkg/cron"
	"github.com/mirostudio/studio_go_server/internal/pkg/pubsub"
	"github.com/mirostudio/studio_go_server/internal/repository"
	"github.com/mirostudio/studio_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis（仅用于进度推送）
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository 和 Service
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	redeRepo := repository.NewRedemptionRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	walletService := service.NewWalletService(db, userRepo, subRepo, txnRepo, redeRepo)
	pricingCache := service.NewPricingCache(settingRepo, &cfg.Pricing)
	// 清扫只终结任务并退款，不与服务商交互
	taskService := service.NewTaskService(taskRepo, walletService, pricingCache, nil, nil, publisher, nil, cfg)

	cronService := cron.NewService(walletService, taskService, subRepo, cfg.Task.StaleAfterMinutes)
	cronService.Start()

	// 启动即执行一次，然后等待调度
	cronService.RunNow()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	cronService.Stop()
	log.Println("Sweeper shutdown complete")
}
