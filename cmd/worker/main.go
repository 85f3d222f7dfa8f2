package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/database"
	"github.com/mirostudio/studio_go_server/internal/pkg/oss"
	"github.com/mirostudio/studio_go_server/internal/pkg/pubsub"
	"github.com/mirostudio/studio_go_server/internal/pkg/queue"
	"github.com/mirostudio/studio_go_server/internal/provider"
	"github.com/mirostudio/studio_go_server/internal/repository"
	"github.com/mirostudio/studio_go_server/internal/service"
	"github.com/mirostudio/studio_go_server/internal/worker"
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

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 OSS（可选）
	var migrator service.AssetMigrator
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			log.Printf("Warning: Failed to init OSS client: %v", err)
		} else {
			migrator = worker.NewOSSMigrator(ossClient)
			log.Println("OSS client initialized")
		}
	}

	// 初始化 Queue 和 Pub/Sub
	taskQueue := queue.NewQueue(rdb, cfg.Queue.GenerationQueue)
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
	gateway := provider.NewHTTPGateway(&cfg.Provider)
	taskService := service.NewTaskService(taskRepo, walletService, pricingCache, gateway, taskQueue, publisher, migrator, cfg)

	// 创建任务处理器
	processor := worker.NewProcessor(taskService, taskQueue)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	log.Printf("Worker started, max workers: %d", maxWorkers)

	// 启动 worker 循环
	for i := 0; i < maxWorkers; i++ {
		go processor.Run(ctx, i)
	}

	// 等待 context 取消
	<-ctx.Done()
	log.Println("Worker shutdown complete")
}
