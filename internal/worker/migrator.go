package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mirostudio/studio_go_server/internal/model"
	"github.com/mirostudio/studio_go_server/internal/pkg/oss"
)

// OSSMigrator 把服务商的结果文件搬运到自有 OSS。服务商地址通常有
// 时效限制，尽早转存；搬运失败由调用方兜底继续用服务商地址。
type OSSMigrator struct {
	ossClient *oss.Client
	client    *http.Client
}

func NewOSSMigrator(ossClient *oss.Client) *OSSMigrator {
	return &OSSMigrator{
		ossClient: ossClient,
		client:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// Migrate 下载结果并上传到 OSS，返回新地址
func (m *OSSMigrator) Migrate(ctx context.Context, taskID int64, kind, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download result: http %d", resp.StatusCode)
	}

	ext := resultExt(sourceURL, resp.Header.Get("Content-Type"), kind)
	return m.ossClient.UploadResultAsset(taskID, kind, resp.Body, ext)
}

// resultExt 先看 URL 扩展名，再看 Content-Type，最后按任务类型兜底
func resultExt(sourceURL, contentType, kind string) string {
	if u, err := url.Parse(sourceURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}

	switch {
	case strings.Contains(contentType, "mp4"):
		return ".mp4"
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"):
		return ".jpg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	}

	if kind == model.TaskKindVideo {
		return ".mp4"
	}
	return ".png"
}
