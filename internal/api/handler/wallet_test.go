package handler

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/api/middleware"
	"github.com/mirostudio/studio_go_server/internal/model/dto"
	"github.com/mirostudio/studio_go_server/internal/pkg/response"
	"github.com/mirostudio/studio_go_server/internal/repository"
	"github.com/mirostudio/studio_go_server/internal/service"
	"github.com/mirostudio/studio_go_server/internal/testutil"
)

type walletHandlerEnv struct {
	handler       *WalletHandler
	walletService *service.WalletService
	db            *gorm.DB
	userID        int64
}

func setupWalletHandler(t *testing.T) (*walletHandlerEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	user := testutil.TestUser(t, db, testutil.WithCreditBalance(100))

	walletService := service.NewWalletService(
		db,
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewRedemptionRepository(db),
	)

	cfg := &config.Config{
		Packages: []config.PackageConfig{
			{ID: "pro_monthly", DurationDays: 30, DailyCredits: 100, MonthlyCredits: 1000},
		},
	}

	handler := NewWalletHandler(walletService, cfg)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return &walletHandlerEnv{
		handler:       handler,
		walletService: walletService,
		db:            db,
		userID:        user.ID,
	}, cleanup
}

// asUser 模拟已通过认证中间件的请求
func asUser(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func TestWalletHandler_GetSummary(t *testing.T) {
	env, cleanup := setupWalletHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/wallet", asUser(env.userID), env.handler.GetSummary)

	w := performRequest(router, "GET", "/wallet", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(100), data["balance"])
	assert.Equal(t, float64(100), data["purchased"])
}

func TestWalletHandler_GetTransactions(t *testing.T) {
	env, cleanup := setupWalletHandler(t)
	defer cleanup()

	_, err := env.walletService.Deduct(env.userID, 10, "视频生成", "generation_task", "")
	require.NoError(t, err)
	_, err = env.walletService.Deduct(env.userID, 20, "视频生成", "generation_task", "")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/wallet/transactions", asUser(env.userID), env.handler.GetTransactions)

	w := performRequest(router, "GET", "/wallet/transactions?page=1&page_size=10", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["total"])

	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)

	// 最新在前
	first := items[0].(map[string]interface{})
	assert.Equal(t, float64(20), first["amount"])
}

func TestWalletHandler_Redeem(t *testing.T) {
	env, cleanup := setupWalletHandler(t)
	defer cleanup()

	testutil.TestRedemptionCode(t, env.db, "WELCOME50", 50)

	router := gin.New()
	router.POST("/wallet/redeem", asUser(env.userID), env.handler.Redeem)

	w := performRequest(router, "POST", "/wallet/redeem", dto.RedeemRequest{Code: "WELCOME50"})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "兑换成功", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(50), data["credits"])
	assert.Equal(t, float64(150), data["new_balance"])

	// 二次兑换按重复操作处理
	w = performRequest(router, "POST", "/wallet/redeem", dto.RedeemRequest{Code: "WELCOME50"})
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeDuplicateAction, resp.Code)
}

func TestWalletHandler_Redeem_UnknownCode(t *testing.T) {
	env, cleanup := setupWalletHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/wallet/redeem", asUser(env.userID), env.handler.Redeem)

	w := performRequest(router, "POST", "/wallet/redeem", dto.RedeemRequest{Code: "NO-SUCH-CODE"})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestWalletHandler_ConfirmSubscription(t *testing.T) {
	env, cleanup := setupWalletHandler(t)
	defer cleanup()

	router := gin.New()
	router.POST("/wallet/subscriptions", asUser(env.userID), env.handler.ConfirmSubscription)

	w := performRequest(router, "POST", "/wallet/subscriptions",
		dto.ConfirmSubscriptionRequest{PackageID: "pro_monthly"})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "订阅已生效", resp.Message)

	// 未配置的套餐拒绝
	w = performRequest(router, "POST", "/wallet/subscriptions",
		dto.ConfirmSubscriptionRequest{PackageID: "no_such_package"})
	resp = parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}
