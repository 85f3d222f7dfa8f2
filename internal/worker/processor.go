package worker

import (
	"context"
	"log"
	"time"

	"github.com/mirostudio/studio_go_server/internal/pkg/queue"
	"github.com/mirostudio/studio_go_server/internal/service"
)

// Processor 生成任务消费者。从队列取任务定位消息，提交到生成服务商。
// 提交的重试与失败退款全部由 TaskService 负责，worker 只是泵。
type Processor struct {
	taskService *service.TaskService
	taskQueue   *queue.Queue
}

func NewProcessor(taskService *service.TaskService, taskQueue *queue.Queue) *Processor {
	return &Processor{
		taskService: taskService,
		taskQueue:   taskQueue,
	}
}

// Process 处理单条队列消息
func (p *Processor) Process(ctx context.Context, msg *queue.TaskMessage) error {
	log.Printf("Processing task %d (user %d, kind %s)", msg.TaskID, msg.UserID, msg.Kind)
	return p.taskService.Submit(ctx, msg.TaskID)
}

// Run 阻塞消费队列直到 ctx 取消。并发度由调用方用多个 goroutine 控制。
func (p *Processor) Run(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", workerID)
			return
		default:
			msg, err := p.taskQueue.Pop(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("Worker %d: failed to pop task: %v", workerID, err)
				continue
			}
			if msg == nil {
				continue // 超时，继续等待
			}

			if err := p.Process(ctx, msg); err != nil {
				log.Printf("Worker %d: task %d failed: %v", workerID, msg.TaskID, err)
			}
		}
	}
}
