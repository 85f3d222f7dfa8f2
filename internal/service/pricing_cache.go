package service

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/repository"
)

var ErrModelNotPriced = errors.New("该模型暂未开放")

// SettingKeyCreditCosts 运营覆盖的模型单价（JSON：model -> 积分）
const SettingKeyCreditCosts = "credit_costs"

// PricingCache 模型积分单价缓存。配置提供默认价，app_settings 里的
// 运营覆盖优先。TTL 到期自动重载；管理端写入后调用 Invalidate 立即生效。
// 作为依赖显式注入使用方，进程启动时创建一次。
type PricingCache struct {
	settingRepo *repository.SettingRepository
	defaults    map[string]int64
	ttl         time.Duration

	mu       sync.RWMutex
	costs    map[string]int64
	loadedAt time.Time

	now func() time.Time
}

func NewPricingCache(settingRepo *repository.SettingRepository, cfg *config.PricingConfig) *PricingCache {
	ttl := 5 * time.Minute
	if cfg.CacheTTLSeconds > 0 {
		ttl = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}

	defaults := make(map[string]int64, len(cfg.DefaultCosts))
	for k, v := range cfg.DefaultCosts {
		defaults[k] = v
	}

	return &PricingCache{
		settingRepo: settingRepo,
		defaults:    defaults,
		ttl:         ttl,
		now:         time.Now,
	}
}

// Cost 单次生成的积分单价
func (c *PricingCache) Cost(model string) (int64, error) {
	costs, err := c.load()
	if err != nil {
		return 0, err
	}
	cost, ok := costs[model]
	if !ok {
		return 0, ErrModelNotPriced
	}
	return cost, nil
}

// Snapshot 当前全部模型单价（返回副本，调用方可随意修改）
func (c *PricingCache) Snapshot() (map[string]int64, error) {
	costs, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(costs))
	for k, v := range costs {
		out[k] = v
	}
	return out, nil
}

// Invalidate 使缓存立即失效（管理端更新单价后调用）
func (c *PricingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.costs = nil
}

func (c *PricingCache) load() (map[string]int64, error) {
	c.mu.RLock()
	if c.costs != nil && c.now().Sub(c.loadedAt) < c.ttl {
		costs := c.costs
		c.mu.RUnlock()
		return costs, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.costs != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.costs, nil
	}

	costs := make(map[string]int64, len(c.defaults))
	for k, v := range c.defaults {
		costs[k] = v
	}

	raw, err := c.settingRepo.Get(SettingKeyCreditCosts)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		var overrides map[string]int64
		if err := json.Unmarshal([]byte(raw), &overrides); err == nil {
			for k, v := range overrides {
				costs[k] = v
			}
		}
	}

	c.costs = costs
	c.loadedAt = c.now()
	return costs, nil
}
