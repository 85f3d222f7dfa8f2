package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/api/handler"
	"github.com/mirostudio/studio_go_server/internal/api/middleware"
)

type Router struct {
	authHandler      *handler.AuthHandler
	walletHandler    *handler.WalletHandler
	taskHandler      *handler.TaskHandler
	modelsHandler    *handler.ModelsHandler
	callbackHandler  *handler.CallbackHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	walletHandler *handler.WalletHandler,
	taskHandler *handler.TaskHandler,
	modelsHandler *handler.ModelsHandler,
	callbackHandler *handler.CallbackHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		walletHandler:    walletHandler,
		taskHandler:      taskHandler,
		modelsHandler:    modelsHandler,
		callbackHandler:  callbackHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// 公开接口 - 模型与套餐
		api.GET("/models", r.modelsHandler.List)
		api.GET("/packages", r.modelsHandler.Packages)

		// 服务商回调（共享密钥鉴权，见 CallbackHandler）
		api.POST("/callbacks/generation", r.callbackHandler.Handle)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 钱包
			wallet := authenticated.Group("/wallet")
			{
				wallet.GET("", r.walletHandler.GetSummary)
				wallet.GET("/transactions", r.walletHandler.GetTransactions)
				wallet.POST("/redeem", r.walletHandler.Redeem)
				wallet.POST("/subscriptions", r.walletHandler.ConfirmSubscription)
			}

			// 生成任务
			tasks := authenticated.Group("/tasks")
			{
				tasks.POST("", r.taskHandler.Create)
				tasks.GET("", r.taskHandler.List)
				tasks.GET("/:id", r.taskHandler.Get)
			}
		}
	}

	return engine
}
