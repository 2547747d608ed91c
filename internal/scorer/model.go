package scorer

import (
	"maps"
	"slices"
	"sort"
	"time"
)

// Algorithm 模型算法名
const Algorithm = "RandomForestRegressor"

// CrossValidation 交叉验证结果（指标为 R²）
type CrossValidation struct {
	Metric       string    `json:"metric"`
	Folds        int       `json:"folds"`
	FoldScores   []float64 `json:"fold_scores"`
	Mean         float64   `json:"mean"`
	Std          float64   `json:"std"`
	HoldoutScore float64   `json:"holdout_score"`
	TrainSize    int       `json:"train_size"`
	TestSize     int       `json:"test_size"`
}

// Metadata 模型元数据
type Metadata struct {
	ModelID            string             `json:"model_id"`
	Algorithm          string             `json:"algorithm"`
	FeatureNames       []string           `json:"feature_names"`
	Params             ForestParams       `json:"params"`
	FeatureImportances map[string]float64 `json:"feature_importances"`
	CrossValidation    CrossValidation    `json:"cross_validation"`
	DatasetSize        int                `json:"dataset_size"`
	TrainedAt          time.Time          `json:"trained_at"`
}

// FeatureImportance 单个特征的重要性
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// TrainedModel 训练完成的模型，加载后只读，可并发调用 Score
type TrainedModel struct {
	meta   Metadata
	forest forest
}

// Metadata 返回元数据副本
func (m *TrainedModel) Metadata() Metadata {
	meta := m.meta
	meta.FeatureNames = slices.Clone(m.meta.FeatureNames)
	meta.FeatureImportances = maps.Clone(m.meta.FeatureImportances)
	meta.CrossValidation.FoldScores = slices.Clone(m.meta.CrossValidation.FoldScores)
	return meta
}

// ID 模型 ID
func (m *TrainedModel) ID() string { return m.meta.ModelID }

// RankedImportances 按重要性降序排列
func (m *TrainedModel) RankedImportances() []FeatureImportance {
	out := make([]FeatureImportance, 0, len(m.meta.FeatureImportances))
	for _, name := range m.meta.FeatureNames {
		out = append(out, FeatureImportance{Feature: name, Importance: m.meta.FeatureImportances[name]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

// predict 对已编码的特征向量给出原始预测值（未截断）
func (m *TrainedModel) predict(x []float64) float64 {
	return m.forest.predict(x)
}
