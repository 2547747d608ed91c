package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"wisefido-risk/internal/dataset"
	"wisefido-risk/internal/models"
	"wisefido-risk/internal/repository"
	"wisefido-risk/internal/scorer"
	"wisefido-risk/internal/simulator"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("service unavailable")
)

// MonitorReader 实时监护缓存读取接口（monitor.CacheManager 满足该接口）
type MonitorReader interface {
	GetLatest(ctx context.Context, bedID string) (*models.Snapshot, error)
	GetHistory(ctx context.Context, bedID string, limit int64) ([]models.Snapshot, error)
	ListBeds(ctx context.Context) ([]string, error)
}

// ModelLister 模型注册表列表接口（repository.ModelRegistry 满足该接口）
type ModelLister interface {
	List(ctx context.Context, limit int) ([]repository.ModelRecord, error)
}

// Deps 处理器依赖；均可为空，对应接口返回 503
type Deps struct {
	Model   *scorer.TrainedModel
	Monitor MonitorReader
	Summary *dataset.Summary
	Models  ModelLister
}

const (
	defaultSeriesPoints   = 60
	maxSeriesPoints       = 600
	defaultSeriesInterval = 2 * time.Second
	maxBatchRecords       = 1000
	maxBatchBodyBytes     = 1 << 20 // 批量评分请求体上限
	defaultModelsLimit    = 20
)

// RiskHandler 风险评分相关接口
type RiskHandler struct {
	deps   Deps
	logger *zap.Logger
}

// NewRiskHandler 创建处理器
func NewRiskHandler(deps Deps, logger *zap.Logger) *RiskHandler {
	return &RiskHandler{deps: deps, logger: logger}
}

// HealthResponse 健康检查
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelID     string `json:"model_id,omitempty"`
	Monitor     bool   `json:"monitor"`
}

// SampleResponse 模拟样本
type SampleResponse struct {
	Profile   string             `json:"profile"`
	Vitals    models.VitalRecord `json:"vitals"`
	Timestamp time.Time          `json:"timestamp"`
}

// ScoreResponse 评分结果
type ScoreResponse struct {
	ModelID    string                `json:"model_id"`
	Vitals     models.VitalRecord    `json:"vitals"`
	Assessment models.RiskAssessment `json:"assessment"`
}

// ModelResponse 模型信息
type ModelResponse struct {
	scorer.Metadata
	RankedImportances []scorer.FeatureImportance `json:"ranked_importances"`
	Thresholds        map[string]float64         `json:"thresholds"`
}

// SeriesResponse 模拟时间序列；模型已加载时每个点都带评分
type SeriesResponse struct {
	Profile  string            `json:"profile"`
	Interval string            `json:"interval"`
	ModelID  string            `json:"model_id,omitempty"`
	Points   []models.Snapshot `json:"points"`
}

// BatchScoreResponse 批量评分结果，Assessments 与请求顺序一致
type BatchScoreResponse struct {
	ModelID      string                  `json:"model_id"`
	Count        int                     `json:"count"`
	Assessments  []models.RiskAssessment `json:"assessments"`
	StatusCounts map[models.Status]int   `json:"status_counts"`
}

// MonitorResponse 床位实时状态
type MonitorResponse struct {
	BedID   string            `json:"bed_id"`
	Latest  *models.Snapshot  `json:"latest"`
	History []models.Snapshot `json:"history"`
}

// Health GET /health
func (h *RiskHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		ModelLoaded: h.deps.Model != nil,
		Monitor:     h.deps.Monitor != nil,
	}
	if h.deps.Model != nil {
		resp.ModelID = h.deps.Model.ID()
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Sample GET /api/v1/risk/sample?profile=
func (h *RiskHandler) Sample(w http.ResponseWriter, r *http.Request) {
	profile, err := simulator.ParseProfile(r.URL.Query().Get("profile"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	// Synthesizer 非并发安全，每个请求单独创建
	writeJSON(w, http.StatusOK, Ok(SampleResponse{
		Profile:   string(profile),
		Vitals:    simulator.NewUnseeded().SampleProfile(profile),
		Timestamp: time.Now().UTC(),
	}))
}

// SampleSeries GET /api/v1/risk/sample/series?points=&interval=&profile=
func (h *RiskHandler) SampleSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	profile, err := simulator.ParseProfile(q.Get("profile"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	points := defaultSeriesPoints
	if v := q.Get("points"); v != "" {
		points, err = strconv.Atoi(v)
		if err != nil || points <= 0 || points > maxSeriesPoints {
			writeError(w, fmt.Errorf("%w: points must be an integer between 1 and %d", errBadRequest, maxSeriesPoints))
			return
		}
	}

	interval := defaultSeriesInterval
	if v := q.Get("interval"); v != "" {
		interval, err = time.ParseDuration(v)
		if err != nil || interval <= 0 {
			writeError(w, fmt.Errorf("%w: interval must be a positive duration such as 2s", errBadRequest))
			return
		}
	}

	series := simulator.NewUnseeded().TimeSeries(points, interval, profile, time.Now().UTC())
	resp := SeriesResponse{
		Profile:  string(profile),
		Interval: interval.String(),
		Points:   series,
	}

	if h.deps.Model != nil {
		records := make([]models.VitalRecord, len(series))
		for i := range series {
			records[i] = series[i].Vitals
		}
		assessments, err := scorer.ScoreBatch(h.deps.Model, records)
		if err != nil {
			h.logger.Error("Failed to score series", zap.Error(err))
			writeError(w, err)
			return
		}
		for i := range series {
			series[i].Assessment = &assessments[i]
		}
		resp.ModelID = h.deps.Model.ID()
	}

	writeJSON(w, http.StatusOK, Ok(resp))
}

// Score POST /api/v1/risk/score
func (h *RiskHandler) Score(w http.ResponseWriter, r *http.Request) {
	if h.deps.Model == nil {
		writeError(w, fmt.Errorf("%w: no model loaded", errUnavailable))
		return
	}

	var in models.VitalInput
	if err := readBodyJSON(r, maxBodyBytes, &in); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}
	record, err := in.ToRecord()
	if err != nil {
		writeError(w, err)
		return
	}

	assessment, err := scorer.Score(h.deps.Model, record)
	if err != nil {
		h.logger.Debug("Rejected score request", zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(ScoreResponse{
		ModelID:    h.deps.Model.ID(),
		Vitals:     record,
		Assessment: assessment,
	}))
}

// ScoreBatch POST /api/v1/risk/score/batch，请求体为体征数组；任一条非法时整批拒绝
func (h *RiskHandler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Model == nil {
		writeError(w, fmt.Errorf("%w: no model loaded", errUnavailable))
		return
	}

	var in []models.VitalInput
	if err := readBodyJSON(r, maxBatchBodyBytes, &in); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}
	if len(in) == 0 || len(in) > maxBatchRecords {
		writeError(w, fmt.Errorf("%w: batch must contain between 1 and %d records", errBadRequest, maxBatchRecords))
		return
	}

	records := make([]models.VitalRecord, len(in))
	for i, v := range in {
		record, err := v.ToRecord()
		if err != nil {
			writeError(w, fmt.Errorf("record %d: %w", i, err))
			return
		}
		records[i] = record
	}

	assessments, err := scorer.ScoreBatch(h.deps.Model, records)
	if err != nil {
		h.logger.Debug("Rejected batch score request", zap.Int("records", len(records)), zap.Error(err))
		writeError(w, err)
		return
	}

	counts := map[models.Status]int{
		models.StatusSafe:     0,
		models.StatusWarning:  0,
		models.StatusCritical: 0,
	}
	for _, a := range assessments {
		counts[a.Status]++
	}

	writeJSON(w, http.StatusOK, Ok(BatchScoreResponse{
		ModelID:      h.deps.Model.ID(),
		Count:        len(assessments),
		Assessments:  assessments,
		StatusCounts: counts,
	}))
}

// Model GET /api/v1/risk/model
func (h *RiskHandler) Model(w http.ResponseWriter, r *http.Request) {
	if h.deps.Model == nil {
		writeError(w, fmt.Errorf("%w: no model loaded", errUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, Ok(ModelResponse{
		Metadata:          h.deps.Model.Metadata(),
		RankedImportances: h.deps.Model.RankedImportances(),
		Thresholds: map[string]float64{
			string(models.StatusWarning):  models.WarningThreshold,
			string(models.StatusCritical): models.CriticalThreshold,
		},
	}))
}

// ListModels GET /api/v1/risk/models?limit=
func (h *RiskHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	if h.deps.Models == nil {
		writeError(w, fmt.Errorf("%w: model registry not configured", errUnavailable))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), defaultModelsLimit)

	records, err := h.deps.Models.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list models", zap.Error(err))
		writeError(w, err)
		return
	}
	if records == nil {
		records = []repository.ModelRecord{}
	}
	writeJSON(w, http.StatusOK, Ok(records))
}

// ListBeds GET /api/v1/risk/monitor
func (h *RiskHandler) ListBeds(w http.ResponseWriter, r *http.Request) {
	if h.deps.Monitor == nil {
		writeError(w, fmt.Errorf("%w: monitor cache not configured", errUnavailable))
		return
	}
	beds, err := h.deps.Monitor.ListBeds(r.Context())
	if err != nil {
		h.logger.Error("Failed to list beds", zap.Error(err))
		writeError(w, err)
		return
	}
	if beds == nil {
		beds = []string{}
	}
	writeJSON(w, http.StatusOK, Ok(beds))
}

// BedMonitor GET /api/v1/risk/monitor/{bedID}?limit=
func (h *RiskHandler) BedMonitor(w http.ResponseWriter, r *http.Request) {
	if h.deps.Monitor == nil {
		writeError(w, fmt.Errorf("%w: monitor cache not configured", errUnavailable))
		return
	}
	bedID := chi.URLParam(r, "bedID")
	limit := parseInt(r.URL.Query().Get("limit"), 60)

	latest, err := h.deps.Monitor.GetLatest(r.Context(), bedID)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.deps.Monitor.GetHistory(r.Context(), bedID, int64(limit))
	if err != nil {
		h.logger.Error("Failed to read history", zap.String("bed_id", bedID), zap.Error(err))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Ok(MonitorResponse{
		BedID:   bedID,
		Latest:  latest,
		History: history,
	}))
}

// DatasetSummary GET /api/v1/risk/dataset/summary
func (h *RiskHandler) DatasetSummary(w http.ResponseWriter, r *http.Request) {
	if h.deps.Summary == nil {
		writeError(w, fmt.Errorf("%w: dataset summary not available", errUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.deps.Summary))
}
