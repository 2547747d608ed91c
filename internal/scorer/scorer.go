package scorer

import (
	"errors"
	"fmt"
	"math"

	"wisefido-risk/internal/models"
)

// ErrNilModel 未加载模型
var ErrNilModel = errors.New("scorer: model is nil")

// Score 对单条记录评分：校验 → 编码 → 森林预测（截断到 [0,1]）→ 分级
// 越界或非有限值直接拒绝，推理阶段不做截断
func Score(model *TrainedModel, record models.VitalRecord) (models.RiskAssessment, error) {
	if model == nil {
		return models.RiskAssessment{}, ErrNilModel
	}
	if err := record.Validate(); err != nil {
		return models.RiskAssessment{}, err
	}

	raw := model.predict(Encode(record))
	if math.IsNaN(raw) {
		raw = 0
	}
	return models.NewRiskAssessment(models.LabelRange.Clip(raw)), nil
}

// ScoreBatch 批量评分，遇到第一条非法记录即返回错误（错误中带记录下标）
func ScoreBatch(model *TrainedModel, records []models.VitalRecord) ([]models.RiskAssessment, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	out := make([]models.RiskAssessment, len(records))
	for i, r := range records {
		a, err := Score(model, r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}
