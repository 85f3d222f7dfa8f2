package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/internal/model"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

func (r *TaskRepository) Create(task *model.GenerationTask) error {
	return r.db.Create(task).Error
}

func (r *TaskRepository) GetByID(id int64) (*model.GenerationTask, error) {
	var task model.GenerationTask
	err := r.db.Where("id = ?", id).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) GetByProviderTaskID(providerTaskID string) (*model.GenerationTask, error) {
	var task model.GenerationTask
	err := r.db.Where("provider_task_id = ?", providerTaskID).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) ListByUserID(userID int64, kind string, limit, offset int) ([]*model.GenerationTask, int64, error) {
	q := r.db.Model(&model.GenerationTask{}).Where("user_id = ?", userID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tasks []*model.GenerationTask
	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error
	return tasks, total, err
}

// MarkRunning 提交成功后记录服务商任务 ID 并进入 running。
// 仅在任务尚未终结时生效。
func (r *TaskRepository) MarkRunning(id int64, providerTaskID string) (bool, error) {
	res := r.db.Model(&model.GenerationTask{}).
		Where("id = ? AND status NOT IN ?", id, []string{model.TaskStatusSucceeded, model.TaskStatusError}).
		Updates(map[string]interface{}{
			"provider_task_id": providerTaskID,
			"status":           model.TaskStatusRunning,
			"progress":         0,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkRetrying 在同一条 UPDATE 里完成「进入 retrying + 重试计数 +1」，
// 避免并发触发时读改写丢失计数。
func (r *TaskRepository) MarkRetrying(id int64) (bool, error) {
	res := r.db.Model(&model.GenerationTask{}).
		Where("id = ? AND status NOT IN ?", id, []string{model.TaskStatusSucceeded, model.TaskStatusError}).
		Updates(map[string]interface{}{
			"status":               model.TaskStatusRetrying,
			"generate_retry_count": gorm.Expr("generate_retry_count + 1"),
		})
	return res.RowsAffected > 0, res.Error
}

// UpdateProgress 非终态任务的进度更新
func (r *TaskRepository) UpdateProgress(id int64, progress int) error {
	return r.db.Model(&model.GenerationTask{}).
		Where("id = ? AND status NOT IN ?", id, []string{model.TaskStatusSucceeded, model.TaskStatusError}).
		Updates(map[string]interface{}{
			"status":   model.TaskStatusRunning,
			"progress": progress,
		}).Error
}

// MarkTerminal 终态转移。条件更新保证终态至多发生一次：
// 返回 false 表示任务已被并发通知终结，调用方必须跳过退款等副作用。
func (r *TaskRepository) MarkTerminal(id int64, status, resultURL, errorMessage string) (bool, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": &now,
	}
	if status == model.TaskStatusSucceeded {
		updates["result_url"] = resultURL
		updates["progress"] = 100
	} else {
		updates["error_message"] = errorMessage
	}

	res := r.db.Model(&model.GenerationTask{}).
		Where("id = ? AND status NOT IN ?", id, []string{model.TaskStatusSucceeded, model.TaskStatusError}).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// UpdateResultURL 资产迁移完成后替换结果地址（任务已是终态，仅此字段可追更）
func (r *TaskRepository) UpdateResultURL(id int64, resultURL string) error {
	return r.db.Model(&model.GenerationTask{}).
		Where("id = ?", id).
		Update("result_url", resultURL).Error
}

// IncrementCallbackRetry 回调处理失败计数
func (r *TaskRepository) IncrementCallbackRetry(id int64) error {
	return r.db.Model(&model.GenerationTask{}).Where("id = ?", id).
		Update("callback_retry_count", gorm.Expr("callback_retry_count + 1")).Error
}

// ListStalePending 超时仍未提交到服务商的 pending 任务，供清扫任务回收
func (r *TaskRepository) ListStalePending(olderThan time.Time, limit int) ([]*model.GenerationTask, error) {
	var tasks []*model.GenerationTask
	err := r.db.Where("status = ? AND created_at < ?", model.TaskStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}
