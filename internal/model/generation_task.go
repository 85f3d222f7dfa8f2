package model

import (
	"time"
)

// 任务类型
const (
	TaskKindVideo = "video"
	TaskKindImage = "image"
)

// 任务状态
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusRetrying  = "retrying"
	TaskStatusSucceeded = "succeeded"
	TaskStatusError     = "error"
)

// GenerationTask 一次生成请求（图片或视频），与一笔扣费流水一一绑定。
// succeeded / error 为终态，进入终态后不再变更。
type GenerationTask struct {
	ID              int64  `gorm:"primaryKey" json:"id"`
	UserID          int64  `gorm:"not null;index" json:"user_id"`
	Kind            string `gorm:"size:10;not null;index" json:"kind"` // video, image
	Model           string `gorm:"size:50;not null" json:"model"`
	Prompt          string `gorm:"type:text;not null" json:"prompt"`
	AspectRatio     string `gorm:"size:10" json:"aspect_ratio,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	SourceAssetURL  string `gorm:"size:500" json:"source_asset_url,omitempty"`
	// ProviderTaskID 为空表示尚未提交到服务商（Created 态），非空表示已提交（Submitted 态）
	ProviderTaskID      *string    `gorm:"size:100;index" json:"provider_task_id,omitempty"`
	Status              string     `gorm:"size:20;default:pending;index" json:"status"`
	Progress            int        `gorm:"default:0" json:"progress"`
	ResultURL           string     `gorm:"size:500" json:"result_url,omitempty"`
	ErrorMessage        string     `gorm:"type:text" json:"error_message,omitempty"`
	CreditCost          int64      `gorm:"not null" json:"credit_cost"`
	CreditTransactionID int64      `gorm:"not null;index" json:"credit_transaction_id"`
	GenerateRetryCount  int        `gorm:"default:0" json:"generate_retry_count"`
	CallbackRetryCount  int        `gorm:"default:0" json:"callback_retry_count"`
	CreatedAt           time.Time  `gorm:"index" json:"created_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func (GenerationTask) TableName() string {
	return "generation_tasks"
}

// IsTerminal 是否已进入终态
func (t *GenerationTask) IsTerminal() bool {
	return t.Status == TaskStatusSucceeded || t.Status == TaskStatusError
}

// IsSubmitted 是否已提交到服务商
func (t *GenerationTask) IsSubmitted() bool {
	return t.ProviderTaskID != nil && *t.ProviderTaskID != ""
}
