package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/repository"
	"github.com/mirostudio/studio_go_server/internal/testutil"
)

func newTestPricing(t *testing.T) (*PricingCache, *repository.SettingRepository) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	settingRepo := repository.NewSettingRepository(db)
	cache := NewPricingCache(settingRepo, &config.PricingConfig{
		CacheTTLSeconds: 60,
		DefaultCosts: map[string]int64{
			"studio-image-1": 10,
			"studio-video-1": 50,
		},
	})
	return cache, settingRepo
}

func TestPricingCache_DefaultCosts(t *testing.T) {
	cache, _ := newTestPricing(t)

	cost, err := cache.Cost("studio-video-1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), cost)

	_, err = cache.Cost("no-such-model")
	assert.ErrorIs(t, err, ErrModelNotPriced)
}

func TestPricingCache_SettingOverrides(t *testing.T) {
	cache, settingRepo := newTestPricing(t)

	// 运营覆盖已有模型单价并上线新模型
	require.NoError(t, settingRepo.Set(SettingKeyCreditCosts,
		`{"studio-video-1":80,"studio-video-2":120}`))
	cache.Invalidate()

	cost, err := cache.Cost("studio-video-1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), cost)

	cost, err = cache.Cost("studio-video-2")
	require.NoError(t, err)
	assert.Equal(t, int64(120), cost)

	// 未覆盖的模型仍然用默认价
	cost, err = cache.Cost("studio-image-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)
}

func TestPricingCache_TTLExpiry(t *testing.T) {
	cache, settingRepo := newTestPricing(t)

	now := time.Now()
	cache.now = func() time.Time { return now }

	cost, err := cache.Cost("studio-image-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)

	// TTL 内不会读到新写入的覆盖
	require.NoError(t, settingRepo.Set(SettingKeyCreditCosts, `{"studio-image-1":99}`))
	cost, err = cache.Cost("studio-image-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)

	// TTL 过后自动重载
	cache.now = func() time.Time { return now.Add(61 * time.Second) }
	cost, err = cache.Cost("studio-image-1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), cost)
}

func TestPricingCache_IgnoresBrokenOverrides(t *testing.T) {
	cache, settingRepo := newTestPricing(t)

	require.NoError(t, settingRepo.Set(SettingKeyCreditCosts, "not json"))

	cost, err := cache.Cost("studio-image-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)
}

func TestPricingCache_Snapshot(t *testing.T) {
	cache, _ := newTestPricing(t)

	costs, err := cache.Snapshot()
	require.NoError(t, err)
	assert.Len(t, costs, 2)

	// 返回副本，调用方修改不影响缓存
	costs["studio-image-1"] = 1
	cost, err := cache.Cost("studio-image-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), cost)
}
