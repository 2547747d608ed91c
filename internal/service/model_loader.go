package service

import (
	"context"
	"fmt"

	"wisefido-risk/internal/models"
	"wisefido-risk/internal/scorer"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ModelSource 模型注册表读取接口（repository.ModelRegistry 满足该接口）
type ModelSource interface {
	LoadLatest(ctx context.Context) (*scorer.TrainedModel, error)
	Get(ctx context.Context, modelID string) (*scorer.TrainedModel, error)
}

// ModelLoader 加载模型：优先注册表，失败时回退到模型文件
//
// 指定 modelID 时从注册表按 ID 加载；回退到文件时文件中的模型 ID 也必须一致。
type ModelLoader struct {
	registry ModelSource
	modelID  string
	path     string
	logger   *zap.Logger
}

// NewModelLoader 创建模型加载器；registry、modelID 可为空
func NewModelLoader(registry ModelSource, modelID, path string, logger *zap.Logger) *ModelLoader {
	return &ModelLoader{
		registry: registry,
		modelID:  modelID,
		path:     path,
		logger:   logger,
	}
}

// Load 加载模型，两处都失败时返回合并后的错误
func (l *ModelLoader) Load(ctx context.Context) (*scorer.TrainedModel, error) {
	var errs error

	if l.registry != nil {
		m, err := l.fromRegistry(ctx)
		if err == nil {
			l.logger.Info("Model loaded from registry",
				zap.String("model_id", m.ID()),
				zap.Bool("pinned", l.modelID != ""),
			)
			return m, nil
		}
		l.logger.Warn("Failed to load model from registry, falling back to file",
			zap.String("model_id", l.modelID),
			zap.String("path", l.path),
			zap.Error(err),
		)
		errs = multierr.Append(errs, err)
	}

	m, err := scorer.Load(l.path)
	if err != nil {
		return nil, multierr.Append(errs, err)
	}
	if l.modelID != "" && m.ID() != l.modelID {
		err := &models.ArtifactLoadError{
			Path: l.path,
			Err:  fmt.Errorf("model file holds %s, want %s", m.ID(), l.modelID),
		}
		return nil, multierr.Append(errs, err)
	}
	l.logger.Info("Model loaded from file", zap.String("path", l.path), zap.String("model_id", m.ID()))
	return m, nil
}

func (l *ModelLoader) fromRegistry(ctx context.Context) (*scorer.TrainedModel, error) {
	if l.modelID != "" {
		return l.registry.Get(ctx, l.modelID)
	}
	return l.registry.LoadLatest(ctx)
}
