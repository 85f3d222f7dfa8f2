package service

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/mirostudio/studio_go_server/config"
	"github.com/mirostudio/studio_go_server/internal/model"
	"github.com/mirostudio/studio_go_server/internal/model/dto"
	"github.com/mirostudio/studio_go_server/internal/pkg/pubsub"
	"github.com/mirostudio/studio_go_server/internal/pkg/queue"
	"github.com/mirostudio/studio_go_server/internal/provider"
	"github.com/mirostudio/studio_go_server/internal/repository"
)

var (
	ErrTaskNotFound   = errors.New("任务不存在")
	ErrTaskPermission = errors.New("无权查看此任务")
)

// AssetMigrator 把服务商结果搬运到持久化存储。best-effort：
// 失败时调用方继续使用服务商地址，绝不因此让任务失败。
type AssetMigrator interface {
	Migrate(ctx context.Context, taskID int64, kind, sourceURL string) (string, error)
}

// TaskService 生成任务生命周期状态机。
//
// pending -> running -> (retrying -> running)* -> succeeded | error，
// pending/running 也可直接进入 error。终态至多发生一次，靠 TaskRepository
// 的条件更新保证；退款只在赢得终态转移的那一次执行，回调和轮询共用同一条
// 幂等路径，不会产生两笔退款。
type TaskService struct {
	taskRepo  *repository.TaskRepository
	wallet    *WalletService
	pricing   *PricingCache
	gateway   provider.Gateway
	taskQueue *queue.Queue      // 可为 nil（测试）
	publisher *pubsub.Publisher // 可为 nil
	migrator  AssetMigrator     // 可为 nil（OSS 未配置时直接用服务商地址）
	cfg       *config.Config
}

func NewTaskService(
	taskRepo *repository.TaskRepository,
	wallet *WalletService,
	pricing *PricingCache,
	gateway provider.Gateway,
	taskQueue *queue.Queue,
	publisher *pubsub.Publisher,
	migrator AssetMigrator,
	cfg *config.Config,
) *TaskService {
	return &TaskService{
		taskRepo:  taskRepo,
		wallet:    wallet,
		pricing:   pricing,
		gateway:   gateway,
		taskQueue: taskQueue,
		publisher: publisher,
		migrator:  migrator,
		cfg:       cfg,
	}
}

// Create 创建生成任务。先扣费后建任务：扣费失败绝不会留下孤儿任务；
// 任务落库失败则按原扣费流水立即退款补偿。
func (s *TaskService) Create(ctx context.Context, userID int64, req *dto.CreateTaskRequest) (*dto.CreateTaskResponse, error) {
	cost, err := s.pricing.Cost(req.Model)
	if err != nil {
		return nil, err
	}

	reason := "图片生成"
	if req.Kind == model.TaskKindVideo {
		reason = "视频生成"
	}

	deducted, err := s.wallet.Deduct(userID, cost, reason, model.RefTypeGenerationTask, "")
	if err != nil {
		return nil, err
	}

	task := &model.GenerationTask{
		UserID:              userID,
		Kind:                req.Kind,
		Model:               req.Model,
		Prompt:              req.Prompt,
		AspectRatio:         req.AspectRatio,
		DurationSeconds:     req.DurationSeconds,
		SourceAssetURL:      req.SourceAssetURL,
		Status:              model.TaskStatusPending,
		CreditCost:          cost,
		CreditTransactionID: deducted.TransactionID,
	}

	if err := s.taskRepo.Create(task); err != nil {
		// 补偿退款，按原流水明细原路返还
		if _, rerr := s.wallet.Refund(userID, cost, "任务创建失败退款",
			model.RefTypeCreditTransaction, strconv.FormatInt(deducted.TransactionID, 10),
			deducted.TransactionID); rerr != nil {
			log.Printf("Task create: refund after insert failure failed for user %d: %v", userID, rerr)
		}
		return nil, err
	}

	if s.taskQueue != nil {
		msg := &queue.TaskMessage{TaskID: task.ID, UserID: userID, Kind: task.Kind}
		if err := s.taskQueue.Push(ctx, msg); err != nil {
			// 入队失败不回滚任务，清扫任务会回收超时的 pending 并退款
			log.Printf("Task %d: failed to enqueue: %v", task.ID, err)
		}
	}

	return &dto.CreateTaskResponse{
		TaskID:     task.ID,
		CreditCost: cost,
		NewBalance: deducted.NewBalance,
	}, nil
}

// Submit 把任务提交到服务商，带重试。资源类瞬时失败指数退避重试，
// 内容审核类失败至多重试一次，识别不了的失败直接终结。重试计数的
// 自增和进入 retrying 是同一条条件更新，并发触发不会丢计数。
// 网络调用全部发生在钱包锁之外。
func (s *TaskService) Submit(ctx context.Context, taskID int64) error {
	for {
		task, err := s.taskRepo.GetByID(taskID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		if task.IsTerminal() || task.IsSubmitted() {
			return nil
		}

		providerTaskID, err := s.gateway.CreateJob(ctx, &provider.JobRequest{
			Kind:            task.Kind,
			Model:           task.Model,
			Prompt:          task.Prompt,
			AspectRatio:     task.AspectRatio,
			DurationSeconds: task.DurationSeconds,
			SourceAssetURL:  task.SourceAssetURL,
		})
		if err == nil {
			if _, err := s.taskRepo.MarkRunning(task.ID, providerTaskID); err != nil {
				return err
			}
			s.publish(ctx, task, model.TaskStatusRunning, 0, "", "")
			return nil
		}

		kind := provider.Classify(err)
		limit := s.retryLimit(kind)
		if task.GenerateRetryCount >= limit {
			return s.failTask(ctx, task, s.userMessage(kind, err))
		}

		ok, rerr := s.taskRepo.MarkRetrying(task.ID)
		if rerr != nil {
			return rerr
		}
		if !ok {
			// 已被并发通知终结
			return nil
		}
		s.publish(ctx, task, model.TaskStatusRetrying, 0, "", "")

		backoff := s.backoff(task.GenerateRetryCount)
		log.Printf("Task %d: submit failed (%v), retrying in %s", task.ID, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// ApplyStatusUpdate 应用一次归一化后的状态通知。回调推送和主动轮询都走
// 这一条路径。任务已终结时所有更新都是 no-op。
func (s *TaskService) ApplyStatusUpdate(ctx context.Context, task *model.GenerationTask, st *provider.JobStatus) error {
	switch st.State {
	case provider.StatePending:
		return nil

	case provider.StateRunning:
		if task.IsTerminal() {
			return nil
		}
		if err := s.taskRepo.UpdateProgress(task.ID, st.Progress); err != nil {
			return err
		}
		s.publish(ctx, task, model.TaskStatusRunning, st.Progress, "", "")
		return nil

	case provider.StateSucceeded:
		transitioned, err := s.taskRepo.MarkTerminal(task.ID, model.TaskStatusSucceeded, st.ResultURL, "")
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}

		// 结果尽力搬运到自有存储；失败就继续用服务商地址，不影响任务成功
		resultURL := st.ResultURL
		if s.migrator != nil && st.ResultURL != "" {
			if migrated, merr := s.migrator.Migrate(ctx, task.ID, task.Kind, st.ResultURL); merr == nil {
				resultURL = migrated
				if err := s.taskRepo.UpdateResultURL(task.ID, migrated); err != nil {
					log.Printf("Task %d: failed to persist migrated url: %v", task.ID, err)
				}
			} else {
				log.Printf("Task %d: asset migration failed, keeping provider url: %v", task.ID, merr)
			}
		}
		s.publish(ctx, task, model.TaskStatusSucceeded, 100, resultURL, "")
		return nil

	case provider.StateError:
		return s.failTask(ctx, task, st.ErrorMessage)

	default:
		return nil
	}
}

// failTask 终结任务并退款。条件更新保证同一任务只有一次转移能赢，
// 输掉的并发通知直接返回，因此退款恰好发生一次。
func (s *TaskService) failTask(ctx context.Context, task *model.GenerationTask, message string) error {
	transitioned, err := s.taskRepo.MarkTerminal(task.ID, model.TaskStatusError, "", message)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}

	if _, err := s.wallet.Refund(task.UserID, task.CreditCost, "生成失败退款",
		model.RefTypeCreditTransaction, strconv.FormatInt(task.CreditTransactionID, 10),
		task.CreditTransactionID); err != nil {
		// 任务已终结但退款失败属于账务异常，必须留痕
		log.Printf("Task %d: REFUND FAILED for user %d amount %d: %v",
			task.ID, task.UserID, task.CreditCost, err)
		return err
	}

	s.publish(ctx, task, model.TaskStatusError, 0, "", message)
	return nil
}

// HandleCallback 服务商异步推送入口（鉴权在路由层完成）
func (s *TaskService) HandleCallback(ctx context.Context, req *dto.ProviderCallbackRequest) error {
	task, err := s.taskRepo.GetByProviderTaskID(req.ProviderTaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return err
	}

	state, ok := provider.NormalizeState(req.State)
	if !ok {
		if err := s.taskRepo.IncrementCallbackRetry(task.ID); err != nil {
			log.Printf("Task %d: failed to count bad callback: %v", task.ID, err)
		}
		return nil // 未知状态忽略，等待下一次通知或轮询
	}

	st := &provider.JobStatus{
		State:        state,
		ResultURL:    req.ResultURL,
		ErrorMessage: req.ErrorMessage,
	}
	if req.Progress != nil {
		st.Progress = *req.Progress
	}

	return s.ApplyStatusUpdate(ctx, task, st)
}

// GetStatus 查询任务状态。任务尚未终结且已提交到服务商时顺带轮询一次，
// 作为回调丢失的兜底，走与回调相同的幂等路径。
func (s *TaskService) GetStatus(ctx context.Context, userID, taskID int64) (*dto.TaskStatusResponse, error) {
	task, err := s.getOwned(userID, taskID)
	if err != nil {
		return nil, err
	}

	if !task.IsTerminal() && task.IsSubmitted() && s.gateway != nil {
		if st, perr := s.gateway.PollStatus(ctx, *task.ProviderTaskID); perr == nil {
			if err := s.ApplyStatusUpdate(ctx, task, st); err != nil {
				log.Printf("Task %d: poll status update failed: %v", task.ID, err)
			}
			// 重新读取，拿到本次更新后的状态
			if reloaded, rerr := s.taskRepo.GetByID(task.ID); rerr == nil {
				task = reloaded
			}
		}
	}

	return buildTaskStatus(task), nil
}

// List 用户任务列表
func (s *TaskService) List(userID int64, kind string, limit, offset int) ([]*dto.TaskStatusResponse, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	tasks, total, err := s.taskRepo.ListByUserID(userID, kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.TaskStatusResponse, len(tasks))
	for i, task := range tasks {
		items[i] = buildTaskStatus(task)
	}
	return items, total, nil
}

// ReconcileStalePending 回收长时间停留在 pending 的任务（入队丢失、
// worker 宕机等），终结并退款。清扫任务定期调用。
func (s *TaskService) ReconcileStalePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	tasks, err := s.taskRepo.ListStalePending(olderThan, limit)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, task := range tasks {
		if err := s.failTask(ctx, task, "任务长时间未开始，已自动取消并退款"); err != nil {
			log.Printf("Reconcile: failed to reclaim task %d: %v", task.ID, err)
			continue
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (s *TaskService) getOwned(userID, taskID int64) (*model.GenerationTask, error) {
	task, err := s.taskRepo.GetByID(taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.UserID != userID {
		return nil, ErrTaskPermission
	}
	return task, nil
}

func (s *TaskService) retryLimit(kind provider.FailureKind) int {
	switch kind {
	case provider.FailureTransient:
		if s.cfg.Task.MaxTransientRetries > 0 {
			return s.cfg.Task.MaxTransientRetries
		}
		return 3
	case provider.FailureContentPolicy:
		if s.cfg.Task.MaxContentRetries > 0 {
			return s.cfg.Task.MaxContentRetries
		}
		return 1
	default:
		return 0
	}
}

func (s *TaskService) backoff(retryCount int) time.Duration {
	base := 2
	if s.cfg.Task.RetryBackoffSeconds > 0 {
		base = s.cfg.Task.RetryBackoffSeconds
	}
	backoff := time.Duration(base) * time.Second
	for i := 1; i < retryCount; i++ {
		backoff *= 2
		if backoff >= time.Minute {
			return time.Minute
		}
	}
	return backoff
}

func (s *TaskService) userMessage(kind provider.FailureKind, err error) string {
	switch kind {
	case provider.FailureTransient:
		return "生成服务繁忙，多次重试后仍然失败，请稍后再试"
	case provider.FailureContentPolicy:
		return "生成内容未通过平台审核，请修改提示词后重试"
	default:
		return err.Error()
	}
}

func (s *TaskService) publish(ctx context.Context, task *model.GenerationTask, status string, progress int, resultURL, errMsg string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProgress(ctx, &pubsub.ProgressMessage{
		UserID:    task.UserID,
		TaskID:    task.ID,
		Kind:      task.Kind,
		Status:    status,
		Progress:  progress,
		ResultURL: resultURL,
		Error:     errMsg,
	}); err != nil {
		log.Printf("Task %d: failed to publish progress: %v", task.ID, err)
	}
}

func buildTaskStatus(task *model.GenerationTask) *dto.TaskStatusResponse {
	resp := &dto.TaskStatusResponse{
		TaskID:       task.ID,
		Kind:         task.Kind,
		Model:        task.Model,
		Status:       task.Status,
		Progress:     task.Progress,
		ResultURL:    task.ResultURL,
		ErrorMessage: task.ErrorMessage,
		CreditCost:   task.CreditCost,
		CreatedAt:    task.CreatedAt.Format(time.RFC3339),
	}
	if task.CompletedAt != nil {
		resp.CompletedAt = task.CompletedAt.Format(time.RFC3339)
	}
	return resp
}
