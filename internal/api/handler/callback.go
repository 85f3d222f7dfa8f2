package handler

import (
	"crypto/subtle"
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/mirostudio/studio_go_server/internal/model/dto"
	"github.com/mirostudio/studio_go_server/internal/pkg/response"
	"github.com/mirostudio/studio_go_server/internal/service"
)

// CallbackHandler 生成服务商异步推送入口
type CallbackHandler struct {
	taskService    *service.TaskService
	callbackSecret string
}

func NewCallbackHandler(taskService *service.TaskService, callbackSecret string) *CallbackHandler {
	return &CallbackHandler{
		taskService:    taskService,
		callbackSecret: callbackSecret,
	}
}

// Handle 接收服务商状态推送
// POST /api/v1/callbacks/generation
func (h *CallbackHandler) Handle(c *gin.Context) {
	secret := c.GetHeader("X-Callback-Secret")
	if h.callbackSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.callbackSecret)) != 1 {
		response.AuthError(c, "")
		return
	}

	var req dto.ProviderCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.taskService.HandleCallback(c.Request.Context(), &req); err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			// 服务商重发旧任务的通知，确认收到即可
			response.Success(c, nil)
			return
		}
		log.Printf("Callback for provider task %s failed: %v", req.ProviderTaskID, err)
		response.ServerError(c, "")
		return
	}

	response.Success(c, nil)
}
