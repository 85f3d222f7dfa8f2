package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/api/middleware"
	"github.com/mirostudio/studio_go_server/internal/model/dto"
	"github.com/mirostudio/studio_go_server/internal/pkg/response"
	"github.com/mirostudio/studio_go_server/internal/service"
)

type WalletHandler struct {
	walletService *service.WalletService
	cfg           *config.Config
}

func NewWalletHandler(walletService *service.WalletService, cfg *config.Config) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		cfg:           cfg,
	}
}

// GetSummary 钱包总览
// GET /api/v1/wallet
func (h *WalletHandler) GetSummary(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	summary, err := h.walletService.GetSummary(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, summary)
}

// GetTransactions 积分流水
// GET /api/v1/wallet/transactions?page=1&page_size=20
func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	txns, total, err := h.walletService.GetHistory(userID, pageSize, (page-1)*pageSize)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	items := make([]*dto.TransactionItem, len(txns))
	for i, txn := range txns {
		items[i] = &dto.TransactionItem{
			ID:            txn.ID,
			Type:          txn.Type,
			Amount:        txn.Amount,
			BalanceBefore: txn.BalanceBefore,
			BalanceAfter:  txn.BalanceAfter,
			Reason:        txn.Reason,
			ReferenceType: txn.ReferenceType,
			ReferenceID:   txn.ReferenceID,
			CreatedAt:     txn.CreatedAt.Format(time.RFC3339),
		}
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Redeem 兑换码兑换
// POST /api/v1/wallet/redeem
func (h *WalletHandler) Redeem(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	result, credits, err := h.walletService.Redeem(userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCodeInvalid):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrCodeRedeemed):
			response.DuplicateError(c, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			response.NotFoundError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "兑换成功", &dto.RedeemResponse{
		Credits:    credits,
		NewBalance: result.NewBalance,
	})
}

// ConfirmSubscription 订阅购买确认（支付成功后由支付回调或前端确认触发）
// POST /api/v1/wallet/subscriptions
func (h *WalletHandler) ConfirmSubscription(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req dto.ConfirmSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	pkgCfg, ok := h.cfg.PackageByID(req.PackageID)
	if !ok {
		response.ParamError(c, service.ErrPackageNotFound.Error())
		return
	}

	sub, err := h.walletService.ConfirmSubscription(userID, &service.SubscriptionPackage{
		ID:             pkgCfg.ID,
		DurationDays:   pkgCfg.DurationDays,
		DailyCredits:   pkgCfg.DailyCredits,
		MonthlyCredits: pkgCfg.MonthlyCredits,
	}, "")
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "订阅已生效", sub)
}
