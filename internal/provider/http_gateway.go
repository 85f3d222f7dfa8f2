package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mirostudio/studio_go_server/config"
)

// HTTPGateway 生成服务商的 HTTP 客户端实现
type HTTPGateway struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	callbackURL string
}

func NewHTTPGateway(cfg *config.ProviderConfig) *HTTPGateway {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &HTTPGateway{
		client:      &http.Client{Timeout: timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
	}
}

type createJobRequest struct {
	Kind            string `json:"kind"`
	Model           string `json:"model"`
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	SourceAssetURL  string `json:"source_asset_url,omitempty"`
	CallbackURL     string `json:"callback_url,omitempty"`
}

type apiEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type createJobData struct {
	TaskID string `json:"task_id"`
}

type pollStatusData struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ResultURL    string `json:"result_url"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// CreateJob 提交生成任务，返回服务商任务 ID
func (g *HTTPGateway) CreateJob(ctx context.Context, req *JobRequest) (string, error) {
	callbackURL := req.CallbackURL
	if callbackURL == "" {
		callbackURL = g.callbackURL
	}

	body := &createJobRequest{
		Kind:            req.Kind,
		Model:           req.Model,
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
		SourceAssetURL:  req.SourceAssetURL,
		CallbackURL:     callbackURL,
	}

	var data createJobData
	if err := g.post(ctx, "/v1/generations", body, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", &Error{Code: "empty_task_id", Message: "provider returned no task id"}
	}
	return data.TaskID, nil
}

// PollStatus 查询任务状态并归一化
func (g *HTTPGateway) PollStatus(ctx context.Context, providerTaskID string) (*JobStatus, error) {
	var data pollStatusData
	if err := g.get(ctx, "/v1/generations/"+providerTaskID, &data); err != nil {
		return nil, err
	}

	state, ok := NormalizeState(data.Status)
	if !ok {
		return nil, &Error{Code: "unknown_status", Message: fmt.Sprintf("unrecognized status %q", data.Status)}
	}

	status := &JobStatus{
		State:     state,
		Progress:  data.Progress,
		ResultURL: data.ResultURL,
	}
	if state == StateError {
		status.ErrorMessage = data.ErrorMessage
		if status.ErrorMessage == "" {
			status.ErrorMessage = data.ErrorCode
		}
	}
	return status, nil
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	return g.do(req, out)
}

func (g *HTTPGateway) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	return g.do(req, out)
}

func (g *HTTPGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return &Error{Code: "server_busy", Message: fmt.Sprintf("provider http %d", resp.StatusCode)}
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}

	if envelope.Code != "" && envelope.Code != "ok" && envelope.Code != "0" {
		return &Error{Code: envelope.Code, Message: envelope.Message}
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode provider data: %w", err)
		}
	}
	return nil
}
