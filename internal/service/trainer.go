package service

import (
	"context"
	"fmt"
	"time"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/dataset"
	"wisefido-risk/internal/models"
	"wisefido-risk/internal/scorer"
	"wisefido-risk/internal/simulator"

	"go.uber.org/zap"
)

// ModelStore 模型登记（repository.ModelRegistry 满足该接口）
type ModelStore interface {
	Save(ctx context.Context, m *scorer.TrainedModel) error
}

// TrainResult 一次训练的产物
type TrainResult struct {
	Model   *scorer.TrainedModel
	Dataset []models.VitalRecord
	Summary dataset.Summary
}

// TrainerService 离线训练：准备数据集 → 训练 → 保存模型
type TrainerService struct {
	config *config.Config
	store  ModelStore
	logger *zap.Logger
}

// NewTrainerService 创建训练服务；store 为空时只写模型文件
func NewTrainerService(cfg *config.Config, store ModelStore, logger *zap.Logger) *TrainerService {
	return &TrainerService{
		config: cfg,
		store:  store,
		logger: logger,
	}
}

// Run 执行一次完整训练
func (s *TrainerService) Run(ctx context.Context) (*TrainResult, error) {
	start := time.Now()

	records, err := s.prepareDataset()
	if err != nil {
		return nil, err
	}
	summary := dataset.Summarize(records)
	s.logger.Info("Dataset ready",
		zap.Int("rows", summary.Rows),
		zap.Int("safe", summary.StatusCounts[models.StatusSafe]),
		zap.Int("warning", summary.StatusCounts[models.StatusWarning]),
		zap.Int("critical", summary.StatusCounts[models.StatusCritical]),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := scorer.Fit(records, s.config.Training)
	if err != nil {
		return nil, fmt.Errorf("failed to train model: %w", err)
	}

	meta := model.Metadata()
	s.logger.Info("Model trained",
		zap.String("model_id", meta.ModelID),
		zap.Int("n_estimators", meta.Params.NEstimators),
		zap.Float64s("cv_scores", meta.CrossValidation.FoldScores),
		zap.Float64("cv_mean", meta.CrossValidation.Mean),
		zap.Float64("cv_std", meta.CrossValidation.Std),
		zap.Float64("holdout_r2", meta.CrossValidation.HoldoutScore),
		zap.Duration("elapsed", time.Since(start)),
	)
	for _, fi := range model.RankedImportances() {
		s.logger.Info("Feature importance",
			zap.String("feature", fi.Feature),
			zap.Float64("importance", fi.Importance),
		)
	}

	if err := scorer.Save(model, s.config.Model.Path); err != nil {
		return nil, err
	}
	s.logger.Info("Model saved", zap.String("path", s.config.Model.Path))

	if s.store != nil {
		if err := s.store.Save(ctx, model); err != nil {
			return nil, fmt.Errorf("failed to register model: %w", err)
		}
		s.logger.Info("Model registered", zap.String("model_id", meta.ModelID))
	}

	return &TrainResult{Model: model, Dataset: records, Summary: summary}, nil
}

// prepareDataset 读取外部数据集，或生成后写入 CSV（可选导出 Excel）
func (s *TrainerService) prepareDataset() ([]models.VitalRecord, error) {
	dc := s.config.Dataset

	if dc.SourceCSV != "" {
		records, err := dataset.LoadCSV(dc.SourceCSV)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Dataset loaded", zap.String("path", dc.SourceCSV), zap.Int("rows", len(records)))
		return records, nil
	}

	records, err := simulator.GenerateDataset(dc.Size, dc.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dataset: %w", err)
	}

	if dc.CSVPath != "" {
		if err := dataset.SaveCSV(dc.CSVPath, records); err != nil {
			return nil, fmt.Errorf("failed to save dataset: %w", err)
		}
		s.logger.Info("Dataset saved", zap.String("path", dc.CSVPath), zap.Int("rows", len(records)))
	}
	if dc.XLSXPath != "" {
		if err := dataset.SaveXLSX(dc.XLSXPath, records); err != nil {
			return nil, fmt.Errorf("failed to export dataset: %w", err)
		}
		s.logger.Info("Dataset exported", zap.String("path", dc.XLSXPath))
	}
	return records, nil
}
