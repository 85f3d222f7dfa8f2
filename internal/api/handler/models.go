package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/pkg/response"
	"github.com/mirostudio/studio_go_server/internal/service"
)

// ModelsHandler 公开的模型与套餐信息
type ModelsHandler struct {
	pricing *service.PricingCache
	cfg     *config.Config
}

func NewModelsHandler(pricing *service.PricingCache, cfg *config.Config) *ModelsHandler {
	return &ModelsHandler{
		pricing: pricing,
		cfg:     cfg,
	}
}

type modelInfo struct {
	Name       string `json:"name"`
	CreditCost int64  `json:"credit_cost"`
}

type packageInfo struct {
	ID             string  `json:"id"`
	DisplayName    string  `json:"display_name"`
	DurationDays   int     `json:"duration_days"`
	DailyCredits   int64   `json:"daily_credits"`
	MonthlyCredits int64   `json:"monthly_credits"`
	Price          float64 `json:"price"`
}

// List 可用模型及单价
// GET /api/v1/models
func (h *ModelsHandler) List(c *gin.Context) {
	costs, err := h.pricing.Snapshot()
	if err != nil {
		response.ServerError(c, "")
		return
	}

	models := make([]modelInfo, 0, len(costs))
	for name, cost := range costs {
		models = append(models, modelInfo{Name: name, CreditCost: cost})
	}

	response.Success(c, gin.H{"models": models})
}

// Packages 订阅套餐列表
// GET /api/v1/packages
func (h *ModelsHandler) Packages(c *gin.Context) {
	packages := make([]packageInfo, 0, len(h.cfg.Packages))
	for _, p := range h.cfg.Packages {
		packages = append(packages, packageInfo{
			ID:             p.ID,
			DisplayName:    p.DisplayName,
			DurationDays:   p.DurationDays,
			DailyCredits:   p.DailyCredits,
			MonthlyCredits: p.MonthlyCredits,
			Price:          p.Price,
		})
	}

	response.Success(c, gin.H{"packages": packages})
}
