package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"wisefido-risk/internal/dataset"
	"wisefido-risk/internal/httpapi"
	"wisefido-risk/internal/models"
	"wisefido-risk/internal/repository"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// APIError 服务端返回的错误
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("risk API error: %s (http %d, code %d)", e.Message, e.StatusCode, e.Code)
}

// RiskClient wisefido-risk-api 客户端
type RiskClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewRiskClient 创建客户端
func NewRiskClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RiskClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &RiskClient{
		httpClient: client,
		logger:     logger,
	}
}

// Health GET /health
func (c *RiskClient) Health(ctx context.Context) (*httpapi.HealthResponse, error) {
	var out httpapi.Result[httpapi.HealthResponse]
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// Sample 获取一条模拟体征（profile 为空时按混合分布）
func (c *RiskClient) Sample(ctx context.Context, profile string) (*httpapi.SampleResponse, error) {
	var out httpapi.Result[httpapi.SampleResponse]
	params := map[string]string{}
	if profile != "" {
		params["profile"] = profile
	}
	if err := c.get(ctx, "/api/v1/risk/sample", params, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// SampleSeries 获取一段模拟时间序列；points、interval 为零值时使用服务端默认值
func (c *RiskClient) SampleSeries(ctx context.Context, profile string, points int, interval time.Duration) (*httpapi.SeriesResponse, error) {
	var out httpapi.Result[httpapi.SeriesResponse]
	params := map[string]string{}
	if profile != "" {
		params["profile"] = profile
	}
	if points > 0 {
		params["points"] = strconv.Itoa(points)
	}
	if interval > 0 {
		params["interval"] = interval.String()
	}
	if err := c.get(ctx, "/api/v1/risk/sample/series", params, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// Score 对一条体征评分
func (c *RiskClient) Score(ctx context.Context, record models.VitalRecord) (*httpapi.ScoreResponse, error) {
	var out httpapi.Result[httpapi.ScoreResponse]
	if err := c.post(ctx, "/api/v1/risk/score", record.Unlabeled(), &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// ScoreBatch 批量评分，结果顺序与 records 一致
func (c *RiskClient) ScoreBatch(ctx context.Context, records []models.VitalRecord) (*httpapi.BatchScoreResponse, error) {
	body := make([]models.VitalRecord, len(records))
	for i, r := range records {
		body[i] = r.Unlabeled()
	}
	var out httpapi.Result[httpapi.BatchScoreResponse]
	if err := c.post(ctx, "/api/v1/risk/score/batch", body, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// Models 列出注册表中最近的模型
func (c *RiskClient) Models(ctx context.Context, limit int) ([]repository.ModelRecord, error) {
	var out httpapi.Result[[]repository.ModelRecord]
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if err := c.get(ctx, "/api/v1/risk/models", params, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// Model 获取模型信息
func (c *RiskClient) Model(ctx context.Context) (*httpapi.ModelResponse, error) {
	var out httpapi.Result[httpapi.ModelResponse]
	if err := c.get(ctx, "/api/v1/risk/model", nil, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// Monitor 获取床位最新状态和历史
func (c *RiskClient) Monitor(ctx context.Context, bedID string, limit int) (*httpapi.MonitorResponse, error) {
	var out httpapi.Result[httpapi.MonitorResponse]
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if err := c.get(ctx, "/api/v1/risk/monitor/"+bedID, params, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// DatasetSummary 获取训练数据集概要
func (c *RiskClient) DatasetSummary(ctx context.Context) (*dataset.Summary, error) {
	var out httpapi.Result[dataset.Summary]
	if err := c.get(ctx, "/api/v1/risk/dataset/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out.Result, nil
}

func (c *RiskClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	var apiErr httpapi.Result[any]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		c.logger.Error("Risk API call failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to call risk API: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Code: apiErr.Code, Message: apiErr.Message}
	}
	return nil
}

func (c *RiskClient) post(ctx context.Context, path string, body, out any) error {
	var apiErr httpapi.Result[any]
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		c.logger.Error("Risk API call failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to call risk API: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Code: apiErr.Code, Message: apiErr.Message}
	}
	return nil
}
