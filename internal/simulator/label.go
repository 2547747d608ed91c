package simulator

import (
	"math"

	"wisefido-risk/internal/models"
)

// abnormalityTerm 单项体征的异常度定义
//
//	a = clip(|x - normal| / scale, 0, 1)
//	oneSided 时只有低于 normal 才算异常（血氧）：a = clip((normal - x) / scale, 0, 1)
type abnormalityTerm struct {
	normal   float64
	scale    float64
	weight   float64
	oneSided bool
}

// labelTerms 风险标签公式：label = clip(Σ weight·a, 0, 1)，权重合计为 1
var labelTerms = map[string]abnormalityTerm{
	models.FeatureHeartRate:        {normal: 75, scale: 60, weight: 0.20},
	models.FeatureSystolicBP:       {normal: 120, scale: 60, weight: 0.10},
	models.FeatureDiastolicBP:      {normal: 80, scale: 40, weight: 0.05},
	models.FeatureOxygenSaturation: {normal: 98, scale: 14, weight: 0.30, oneSided: true},
	models.FeatureRespiratoryRate:  {normal: 16, scale: 16, weight: 0.20},
	models.FeatureTemperature:      {normal: 37.0, scale: 3.0, weight: 0.15},
}

// NormalValue 返回某项体征的临床正常值
func NormalValue(feature string) float64 {
	return labelTerms[feature].normal
}

// NormalRecord 全部体征取正常值的记录
func NormalRecord() models.VitalRecord {
	var r models.VitalRecord
	for _, name := range models.FeatureNames {
		r.Set(name, NormalValue(name))
	}
	return r
}

// Abnormality 单项体征异常度，范围 [0,1]，偏离正常值越远越大
func Abnormality(feature string, v float64) float64 {
	term, ok := labelTerms[feature]
	if !ok {
		return 0
	}
	dev := math.Abs(v - term.normal)
	if term.oneSided {
		dev = term.normal - v
	}
	return models.LabelRange.Clip(dev / term.scale)
}

// RiskLabel 不含噪声的风险标签（各体征异常度加权和）
func RiskLabel(r models.VitalRecord) float64 {
	var sum float64
	for _, name := range models.FeatureNames {
		v, _ := r.Value(name)
		sum += labelTerms[name].weight * Abnormality(name, v)
	}
	return models.LabelRange.Clip(sum)
}
