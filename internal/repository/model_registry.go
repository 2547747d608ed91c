package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wisefido-risk/internal/models"
	"wisefido-risk/internal/scorer"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// registrySource ArtifactLoadError.Path 中使用的来源标识
const registrySource = "postgres:risk_models"

// pgUndefinedTable PostgreSQL 错误码：表不存在
const pgUndefinedTable = "42P01"

var (
	// ErrNoModel 注册表中没有模型
	ErrNoModel = errors.New("no model registered")
	// ErrRegistryNotInitialized risk_models 表尚未创建
	ErrRegistryNotInitialized = errors.New("model registry not initialized")
)

const createModelsTable = `
	CREATE TABLE IF NOT EXISTS risk_models (
		model_id      UUID PRIMARY KEY,
		algorithm     TEXT NOT NULL,
		dataset_size  INTEGER NOT NULL,
		cv_mean       DOUBLE PRECISION NOT NULL,
		cv_std        DOUBLE PRECISION NOT NULL,
		holdout_r2    DOUBLE PRECISION NOT NULL,
		artifact      JSONB NOT NULL,
		trained_at    TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_risk_models_trained_at ON risk_models (trained_at DESC);
`

// ModelRecord 注册表中的一行（不含模型内容）
type ModelRecord struct {
	ModelID     string    `json:"model_id"`
	Algorithm   string    `json:"algorithm"`
	DatasetSize int       `json:"dataset_size"`
	CVMean      float64   `json:"cv_mean"`
	CVStd       float64   `json:"cv_std"`
	HoldoutR2   float64   `json:"holdout_r2"`
	TrainedAt   time.Time `json:"trained_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// ModelRegistry 风险模型注册表（risk_models 表，模型以 JSONB 存储）
// 只保存训练产物和指标，不保存任何体征数据
type ModelRegistry struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewModelRegistry 创建模型注册表
func NewModelRegistry(db *sql.DB, logger *zap.Logger) *ModelRegistry {
	return &ModelRegistry{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema 建表（幂等）
func (r *ModelRegistry) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createModelsTable); err != nil {
		return fmt.Errorf("failed to create risk_models table: %w", err)
	}
	return nil
}

// Save 登记模型；同一 model_id 重复登记时忽略
func (r *ModelRegistry) Save(ctx context.Context, m *scorer.TrainedModel) error {
	if m == nil {
		return fmt.Errorf("model is required")
	}
	artifact, err := scorer.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	meta := m.Metadata()
	query := `
		INSERT INTO risk_models (
			model_id, algorithm, dataset_size, cv_mean, cv_std, holdout_r2, artifact, trained_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (model_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		meta.ModelID,
		meta.Algorithm,
		meta.DatasetSize,
		meta.CrossValidation.Mean,
		meta.CrossValidation.Std,
		meta.CrossValidation.HoldoutScore,
		artifact,
		meta.TrainedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", r.mapError(err))
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		r.logger.Debug("Model already registered", zap.String("model_id", meta.ModelID))
		return nil
	}
	r.logger.Info("Model registered",
		zap.String("model_id", meta.ModelID),
		zap.Float64("cv_mean", meta.CrossValidation.Mean),
		zap.Int("dataset_size", meta.DatasetSize),
	)
	return nil
}

// LoadLatest 加载最近训练的模型
func (r *ModelRegistry) LoadLatest(ctx context.Context) (*scorer.TrainedModel, error) {
	query := `
		SELECT artifact
		FROM risk_models
		ORDER BY trained_at DESC, created_at DESC
		LIMIT 1
	`
	return r.loadOne(ctx, query)
}

// Get 按 model_id 加载模型
func (r *ModelRegistry) Get(ctx context.Context, modelID string) (*scorer.TrainedModel, error) {
	if modelID == "" {
		return nil, fmt.Errorf("model_id is required")
	}
	query := `
		SELECT artifact
		FROM risk_models
		WHERE model_id = $1
	`
	return r.loadOne(ctx, query, modelID)
}

func (r *ModelRegistry) loadOne(ctx context.Context, query string, args ...any) (*scorer.TrainedModel, error) {
	var artifact []byte
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&artifact)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.ArtifactLoadError{Path: registrySource, Err: ErrNoModel}
		}
		return nil, &models.ArtifactLoadError{Path: registrySource, Err: r.mapError(err)}
	}

	m, err := scorer.Unmarshal(artifact)
	if err != nil {
		var ale *models.ArtifactLoadError
		if errors.As(err, &ale) {
			ale.Path = registrySource
		}
		return nil, err
	}
	return m, nil
}

// List 按训练时间倒序列出最近的模型
func (r *ModelRegistry) List(ctx context.Context, limit int) ([]ModelRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT model_id, algorithm, dataset_size, cv_mean, cv_std, holdout_r2, trained_at, created_at
		FROM risk_models
		ORDER BY trained_at DESC, created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", r.mapError(err))
	}
	defer rows.Close()

	var out []ModelRecord
	for rows.Next() {
		var rec ModelRecord
		if err := rows.Scan(
			&rec.ModelID,
			&rec.Algorithm,
			&rec.DatasetSize,
			&rec.CVMean,
			&rec.CVStd,
			&rec.HoldoutR2,
			&rec.TrainedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", err)
	}
	return out, nil
}

// mapError 将"表不存在"转换为 ErrRegistryNotInitialized
func (r *ModelRegistry) mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUndefinedTable {
		return fmt.Errorf("%w: %v", ErrRegistryNotInitialized, err)
	}
	return err
}
