package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/model"
	"github.com/mirostudio/studio_go_server/internal/repository"
	"github.com/mirostudio/studio_go_server/internal/service"
	"github.com/mirostudio/studio_go_server/internal/testutil"
)

type cronEnv struct {
	svc      *Service
	db       *gorm.DB
	taskRepo *repository.TaskRepository
	subRepo  *repository.SubscriptionRepository
}

func setupCronService(t *testing.T) (*cronEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	redeRepo := repository.NewRedemptionRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	walletService := service.NewWalletService(db, userRepo, subRepo, txnRepo, redeRepo)
	pricing := service.NewPricingCache(repository.NewSettingRepository(db), &config.PricingConfig{
		DefaultCosts: map[string]int64{"studio-image-1": 10},
	})
	taskService := service.NewTaskService(taskRepo, walletService, pricing,
		nil, nil, nil, nil, &config.Config{})

	svc := NewService(walletService, taskService, subRepo, 30)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return &cronEnv{svc: svc, db: db, taskRepo: taskRepo, subRepo: subRepo}, cleanup
}

func TestService_StartAndStop(t *testing.T) {
	env, cleanup := setupCronService(t)
	defer cleanup()

	env.svc.Start()
	time.Sleep(10 * time.Millisecond)
	env.svc.Stop()
}

func TestService_RunNow_ExpiresOverdueSubscriptions(t *testing.T) {
	env, cleanup := setupCronService(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	today := testutil.DateUTC(time.Now())
	overdue := testutil.TestSubscription(t, env.db, user.ID,
		testutil.WithDates(today.AddDate(0, 0, -40), today.AddDate(0, 0, -11)))
	active := testutil.TestSubscription(t, env.db, user.ID)

	env.svc.RunNow()

	got, err := env.subRepo.GetByID(overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusExpired, got.Status)

	got, err = env.subRepo.GetByID(active.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusActive, got.Status)
}

func TestService_RunNow_ReclaimsStalePending(t *testing.T) {
	env, cleanup := setupCronService(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db, testutil.WithCreditBalance(100))
	stale := testutil.TestTask(t, env.db, user.ID)
	fresh := testutil.TestTask(t, env.db, user.ID)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.db.Model(&model.GenerationTask{}).
		Where("id = ?", stale.ID).Update("created_at", old).Error)

	env.svc.RunNow()

	got, err := env.taskRepo.GetByID(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusError, got.Status)

	got, err = env.taskRepo.GetByID(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, got.Status)
}
