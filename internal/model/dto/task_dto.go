package dto

type CreateTaskRequest struct {
	Kind            string `json:"kind" binding:"required,oneof=video image"`
	Model           string `json:"model" binding:"required"`
	Prompt          string `json:"prompt" binding:"required"`
	AspectRatio     string `json:"aspect_ratio"`
	DurationSeconds int    `json:"duration_seconds"`
	SourceAssetURL  string `json:"source_asset_url"`
}

type CreateTaskResponse struct {
	TaskID     int64 `json:"task_id"`
	CreditCost int64 `json:"credit_cost"`
	NewBalance int64 `json:"new_balance"`
}

type TaskStatusResponse struct {
	TaskID       int64  `json:"task_id"`
	Kind         string `json:"kind"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreditCost   int64  `json:"credit_cost"`
	CreatedAt    string `json:"created_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// ProviderCallbackRequest 服务商异步推送的任务状态
type ProviderCallbackRequest struct {
	ProviderTaskID string `json:"provider_task_id" binding:"required"`
	State          string `json:"state" binding:"required"`
	Progress       *int   `json:"progress"`
	ResultURL      string `json:"result_url"`
	ErrorMessage   string `json:"error_message"`
}
