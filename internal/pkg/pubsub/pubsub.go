package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelTaskProgress      = "task_progress"
	ChannelPricingInvalidate = "pricing_invalidate"
)

// ProgressMessage 任务进度消息
type ProgressMessage struct {
	Type         string `json:"type"`
	UserID       int64  `json:"user_id"`
	TaskID       int64  `json:"task_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ResultURL    string `json:"result_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishProgress 发布进度消息
func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	msg.Type = "task_progress"

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal progress message: %w", err)
	}

	return p.client.Publish(ctx, ChannelTaskProgress, data).Err()
}

// PublishPricingInvalidate 通知所有 API 进程丢弃单价缓存。
// 管理端改完 app_settings 后调用，消息本身没有内容。
func (p *Publisher) PublishPricingInvalidate(ctx context.Context) error {
	return p.client.Publish(ctx, ChannelPricingInvalidate, "1").Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅进度消息
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*ProgressMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelTaskProgress)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var progressMsg ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &progressMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&progressMsg)
		}
	}
}

// SubscribePricingInvalidate 订阅单价缓存失效通知
func (s *Subscriber) SubscribePricingInvalidate(ctx context.Context, handler func()) error {
	pubsub := s.client.Subscribe(ctx, ChannelPricingInvalidate)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			handler()
		}
	}
}
