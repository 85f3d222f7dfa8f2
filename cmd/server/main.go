package main

import (
	"context"
	"fmt"
	"log"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/api"
	"github.com/mirostudio/studio_go_server/internal/api/handler"
	"github.com/mirostudio/studio_go_server/internal/database"
	"github.com/mirostudio/studio_go_server/internal/pkg/pubsub"
	"github.com/mirostudio/studio_go_server/internal/pkg/queue"
	"github.com/mirostudio/studio_go_server/internal/pkg/ws"
	"github.com/mirostudio/studio_go_server/internal/provider"
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
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Queue 和 Pub/Sub
	taskQueue := queue.NewQueue(rdb, cfg.Queue.GenerationQueue)
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	redeRepo := repository.NewRedemptionRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	// 初始化 Service
	authService := service.NewAuthService(userRepo, cfg)
	walletService := service.NewWalletService(db, userRepo, subRepo, txnRepo, redeRepo)
	pricingCache := service.NewPricingCache(settingRepo, &cfg.Pricing)
	gateway := provider.NewHTTPGateway(&cfg.Provider)
	// API 进程不做资产搬运，轮询到成功时直接用服务商地址，搬运交给 worker
	taskService := service.NewTaskService(taskRepo, walletService, pricingCache, gateway, taskQueue, publisher, nil, cfg)

	// 初始化 Handler
	authHandler := handler.NewAuthHandler(authService)
	walletHandler := handler.NewWalletHandler(walletService, cfg)
	taskHandler := handler.NewTaskHandler(taskService)
	modelsHandler := handler.NewModelsHandler(pricingCache, cfg)
	callbackHandler := handler.NewCallbackHandler(taskService, cfg.Provider.CallbackSecret)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret)

	// 订阅进度消息，转发给用户的 WebSocket 连接
	go func() {
		err := subscriber.Subscribe(context.Background(), func(msg *pubsub.ProgressMessage) {
			wsHub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg})
		})
		if err != nil && err != context.Canceled {
			log.Printf("Progress subscriber exited: %v", err)
		}
	}()

	// 运营改价后各进程立即丢弃单价缓存
	go func() {
		invalidateSub := pubsub.NewSubscriber(rdb)
		err := invalidateSub.SubscribePricingInvalidate(context.Background(), pricingCache.Invalidate)
		if err != nil && err != context.Canceled {
			log.Printf("Pricing invalidate subscriber exited: %v", err)
		}
	}()

	// 初始化 Router
	router := api.NewRouter(
		authHandler,
		walletHandler,
		taskHandler,
		modelsHandler,
		callbackHandler,
		websocketHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
