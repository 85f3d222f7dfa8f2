package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/model"
	"github.com/mirostudio/studio_go_server/internal/model/dto"
	"github.com/mirostudio/studio_go_server/internal/pkg/response"
	"github.com/mirostudio/studio_go_server/internal/repository"
	"github.com/mirostudio/studio_go_server/internal/service"
	"github.com/mirostudio/studio_go_server/internal/testutil"
)

type callbackEnv struct {
	handler  *CallbackHandler
	taskRepo *repository.TaskRepository
	userID   int64
}

func setupCallbackHandler(t *testing.T) (*callbackEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	user := testutil.TestUser(t, db, testutil.WithCreditBalance(100))

	taskRepo := repository.NewTaskRepository(db)
	walletService := service.NewWalletService(
		db,
		repository.NewUserRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewRedemptionRepository(db),
	)
	pricing := service.NewPricingCache(repository.NewSettingRepository(db), &config.PricingConfig{
		DefaultCosts: map[string]int64{"studio-image-1": 10},
	})

	taskService := service.NewTaskService(taskRepo, walletService, pricing,
		nil, nil, nil, nil, &config.Config{})
	handler := NewCallbackHandler(taskService, "shared-secret")

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return &callbackEnv{handler: handler, taskRepo: taskRepo, userID: user.ID}, cleanup
}

func postCallback(handler *CallbackHandler, secret string, body interface{}) *httptest.ResponseRecorder {
	router := gin.New()
	router.POST("/callbacks/generation", handler.Handle)

	jsonBytes, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", "/callbacks/generation", bytes.NewBuffer(jsonBytes))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Callback-Secret", secret)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCallbackHandler_Success(t *testing.T) {
	env, cleanup := setupCallbackHandler(t)
	defer cleanup()

	providerID := "prov-cb-1"
	running := &model.GenerationTask{
		UserID:         env.userID,
		Kind:           model.TaskKindImage,
		Model:          "studio-image-1",
		Prompt:         "a cat in space",
		Status:         model.TaskStatusRunning,
		ProviderTaskID: &providerID,
		CreditCost:     10,
	}
	require.NoError(t, env.taskRepo.Create(running))

	w := postCallback(env.handler, "shared-secret", dto.ProviderCallbackRequest{
		ProviderTaskID: providerID,
		State:          "succeeded",
		ResultURL:      "https://provider.example.com/out.png",
	})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	got, err := env.taskRepo.GetByID(running.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSucceeded, got.Status)
	assert.Equal(t, "https://provider.example.com/out.png", got.ResultURL)
}

func TestCallbackHandler_WrongSecret(t *testing.T) {
	env, cleanup := setupCallbackHandler(t)
	defer cleanup()

	w := postCallback(env.handler, "wrong-secret", dto.ProviderCallbackRequest{
		ProviderTaskID: "prov-x",
		State:          "succeeded",
	})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestCallbackHandler_EmptyConfiguredSecretRejectsAll(t *testing.T) {
	handler := NewCallbackHandler(nil, "")

	w := postCallback(handler, "", dto.ProviderCallbackRequest{
		ProviderTaskID: "prov-x",
		State:          "succeeded",
	})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestCallbackHandler_UnknownProviderTaskAcked(t *testing.T) {
	env, cleanup := setupCallbackHandler(t)
	defer cleanup()

	// 未知任务确认收到，避免服务商无限重发
	w := postCallback(env.handler, "shared-secret", dto.ProviderCallbackRequest{
		ProviderTaskID: "prov-unknown",
		State:          "succeeded",
	})

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeSuccess, resp.Code)
}
