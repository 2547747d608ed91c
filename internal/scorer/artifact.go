package scorer

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"wisefido-risk/internal/models"
)

// artifact 模型文件结构（JSON）
type artifact struct {
	Metadata Metadata `json:"metadata"`
	Forest   forest   `json:"forest"`
}

// Marshal 序列化模型
func Marshal(m *TrainedModel) ([]byte, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	return json.Marshal(artifact{Metadata: m.meta, Forest: m.forest})
}

// Unmarshal 反序列化并校验模型（特征顺序、树结构、重要性）
func Unmarshal(data []byte) (*TrainedModel, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &models.ArtifactLoadError{Err: fmt.Errorf("decode model: %w", err)}
	}
	if err := a.validate(); err != nil {
		return nil, &models.ArtifactLoadError{Err: err}
	}
	return &TrainedModel{meta: a.Metadata, forest: a.Forest}, nil
}

func (a *artifact) validate() error {
	if !slices.Equal(a.Metadata.FeatureNames, models.FeatureNames) {
		return fmt.Errorf("feature schema mismatch: model has %v, expected %v", a.Metadata.FeatureNames, models.FeatureNames)
	}
	if len(a.Forest.Trees) == 0 {
		return fmt.Errorf("model has no trees")
	}
	for i := range a.Forest.Trees {
		if err := a.Forest.Trees[i].validate(len(models.FeatureNames)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	for name, v := range a.Metadata.FeatureImportances {
		if !slices.Contains(models.FeatureNames, name) {
			return fmt.Errorf("unknown feature importance %q", name)
		}
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("invalid importance for %s: %v", name, v)
		}
	}
	return nil
}

// Save 写入模型文件（先写临时文件再 rename，避免读到半个文件）
func Save(m *TrainedModel, path string) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}
	return nil
}

// Load 读取并校验模型文件
func Load(path string) (*TrainedModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ArtifactLoadError{Path: path, Err: err}
	}
	m, err := Unmarshal(data)
	if err != nil {
		if ale, ok := err.(*models.ArtifactLoadError); ok {
			ale.Path = path
		}
		return nil, err
	}
	return m, nil
}
