package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// State 任务状态的统一词汇。各服务商的状态字面量先归一化再进入状态机。
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateError     State = "error"
)

// FailureKind 失败分类，决定重试策略
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureTransient 资源分配类瞬时失败，指数退避重试
	FailureTransient
	// FailureContentPolicy 内容审核类失败，同样的输入重试大概率还是失败，至多重试一次
	FailureContentPolicy
	// FailureUnknown 无法识别的失败，直接终结任务
	FailureUnknown
)

// JobRequest 创建生成任务的参数
type JobRequest struct {
	Kind            string
	Model           string
	Prompt          string
	AspectRatio     string
	DurationSeconds int
	SourceAssetURL  string
	CallbackURL     string
}

// JobStatus 归一化后的任务状态
type JobStatus struct {
	State        State
	Progress     int
	ResultURL    string
	ErrorMessage string
}

// Gateway 生成服务商的抽象能力：提交任务、查询状态。
// 实现不持有任何钱包锁，调用方保证网络调用发生在锁外。
type Gateway interface {
	CreateJob(ctx context.Context, req *JobRequest) (providerTaskID string, err error)
	PollStatus(ctx context.Context, providerTaskID string) (*JobStatus, error)
}

// Error 服务商返回的业务错误
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
}

// NormalizeState 归一化服务商状态词汇，识别不了返回 false
func NormalizeState(raw string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "submitted", "waiting":
		return StatePending, true
	case "running", "processing", "generating", "in_progress":
		return StateRunning, true
	case "succeeded", "success", "completed", "finished", "done":
		return StateSucceeded, true
	case "error", "failed", "failure":
		return StateError, true
	default:
		return "", false
	}
}

// 资源分配类错误码/关键词
var transientCodes = map[string]bool{
	"resource_exhausted":   true,
	"resource_allocating":  true,
	"rate_limited":         true,
	"server_busy":          true,
	"service_unavailable":  true,
	"internal_error_retry": true,
}

// 内容审核类错误码/关键词
var contentCodes = map[string]bool{
	"content_policy_violation": true,
	"sensitive_content":        true,
	"prompt_rejected":          true,
	"risk_control":             true,
}

// Classify 判定失败分类。服务商业务错误按错误码归类，
// 网络超时视作瞬时失败，其余一律 Unknown。
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var pErr *Error
	if errors.As(err, &pErr) {
		return ClassifyCode(pErr.Code, pErr.Message)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}

	return FailureUnknown
}

// ClassifyCode 按错误码（其次错误信息关键词）归类
func ClassifyCode(code, message string) FailureKind {
	code = strings.ToLower(strings.TrimSpace(code))
	if transientCodes[code] {
		return FailureTransient
	}
	if contentCodes[code] {
		return FailureContentPolicy
	}

	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "resource") && strings.Contains(msg, "alloc"),
		strings.Contains(msg, "try again"),
		strings.Contains(msg, "too many requests"):
		return FailureTransient
	case strings.Contains(msg, "content policy"),
		strings.Contains(msg, "sensitive"),
		strings.Contains(msg, "审核"):
		return FailureContentPolicy
	default:
		return FailureUnknown
	}
}
