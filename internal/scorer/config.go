package scorer

import (
	"errors"
	"fmt"
)

// TrainConfig 训练配置
//
//	NEstimators    树的数量（默认 200）
//	MaxDepth       最大深度，0 表示不限（默认 8）
//	MinSamplesLeaf 叶子最少样本数（默认 4）
//	MaxFeatures    每次分裂候选特征数，0 表示全部（默认 0）
//	RandomState    随机种子，决定 bootstrap、划分和交叉验证（默认 42）
//	TestFraction   留出验证集比例（默认 0.2）
//	CVFolds        交叉验证折数，小于 2 时跳过（默认 5）
//	MinSamples     最少训练样本数（默认 10）
//	NJobs          并行建树数，0 表示 GOMAXPROCS
type TrainConfig struct {
	NEstimators    int     `yaml:"n_estimators"`
	MaxDepth       int     `yaml:"max_depth"`
	MinSamplesLeaf int     `yaml:"min_samples_leaf"`
	MaxFeatures    int     `yaml:"max_features"`
	RandomState    int64   `yaml:"random_state"`
	TestFraction   float64 `yaml:"test_fraction"`
	CVFolds        int     `yaml:"cv_folds"`
	MinSamples     int     `yaml:"min_samples"`
	NJobs          int     `yaml:"n_jobs"`
}

// DefaultTrainConfig 默认训练配置
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		NEstimators:    200,
		MaxDepth:       8,
		MinSamplesLeaf: 4,
		MaxFeatures:    0,
		RandomState:    42,
		TestFraction:   0.2,
		CVFolds:        5,
		MinSamples:     10,
		NJobs:          0,
	}
}

// Validate 校验配置
func (c TrainConfig) Validate() error {
	var errs []error
	if c.NEstimators < 1 {
		errs = append(errs, fmt.Errorf("n_estimators must be >= 1, got %d", c.NEstimators))
	}
	if c.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("max_depth must be >= 0, got %d", c.MaxDepth))
	}
	if c.MinSamplesLeaf < 1 {
		errs = append(errs, fmt.Errorf("min_samples_leaf must be >= 1, got %d", c.MinSamplesLeaf))
	}
	if c.MaxFeatures < 0 {
		errs = append(errs, fmt.Errorf("max_features must be >= 0, got %d", c.MaxFeatures))
	}
	if c.TestFraction <= 0 || c.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("test_fraction must be in (0, 1), got %v", c.TestFraction))
	}
	if c.MinSamples < 2 {
		errs = append(errs, fmt.Errorf("min_samples must be >= 2, got %d", c.MinSamples))
	}
	if c.CVFolds < 0 {
		errs = append(errs, fmt.Errorf("cv_folds must be >= 0, got %d", c.CVFolds))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid train config: %w", errors.Join(errs...))
	}
	return nil
}

func (c TrainConfig) forestParams() ForestParams {
	return ForestParams{
		NEstimators:    c.NEstimators,
		MaxDepth:       c.MaxDepth,
		MinSamplesLeaf: c.MinSamplesLeaf,
		MaxFeatures:    c.MaxFeatures,
		RandomState:    c.RandomState,
	}
}
