package scorer

import (
	"fmt"

	"wisefido-risk/internal/models"
)

// Encode 将记录转换为固定顺序的特征向量（顺序即 models.FeatureNames）
// 训练和推理都只能通过这里编码；树模型不需要归一化，因此取原始值
func Encode(r models.VitalRecord) []float64 {
	x := make([]float64, len(models.FeatureNames))
	for i, name := range models.FeatureNames {
		x[i], _ = r.Value(name)
	}
	return x
}

// encodeDataset 校验并编码训练集，返回特征矩阵和标签
func encodeDataset(records []models.VitalRecord) ([][]float64, []float64, error) {
	x := make([][]float64, len(records))
	y := make([]float64, len(records))
	for i, r := range records {
		if err := r.ValidateLabeled(); err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		x[i] = Encode(r)
		y[i] = *r.RiskLabel
	}
	return x, y, nil
}
