package models

import (
	"math"
)

// 特征名（固定顺序：训练与推理共享，同时也是数据集 CSV 的列顺序）
const (
	FeatureHeartRate        = "heart_rate"
	FeatureSystolicBP       = "blood_pressure_systolic"
	FeatureDiastolicBP      = "blood_pressure_diastolic"
	FeatureOxygenSaturation = "oxygen_saturation"
	FeatureRespiratoryRate  = "respiratory_rate"
	FeatureTemperature      = "temperature"
	LabelColumn             = "risk_label"
)

// FeatureNames 特征顺序
var FeatureNames = []string{
	FeatureHeartRate,
	FeatureSystolicBP,
	FeatureDiastolicBP,
	FeatureOxygenSaturation,
	FeatureRespiratoryRate,
	FeatureTemperature,
}

// Range 闭区间 [Min, Max]
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains 判断 v 是否在区间内（NaN/Inf 一律视为越界）
func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= r.Min && v <= r.Max
}

// Clip 将 v 截断到区间内
func (r Range) Clip(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// PlausibleBounds 生理合理范围：推理和加载数据集时超出即拒绝
var PlausibleBounds = map[string]Range{
	FeatureHeartRate:        {Min: 20, Max: 250},
	FeatureSystolicBP:       {Min: 40, Max: 260},
	FeatureDiastolicBP:      {Min: 20, Max: 160},
	FeatureOxygenSaturation: {Min: 0, Max: 100},
	FeatureRespiratoryRate:  {Min: 4, Max: 60},
	FeatureTemperature:      {Min: 30, Max: 45},
}

// GenerationBounds 模拟器生成时的截断范围（均位于 PlausibleBounds 之内）
var GenerationBounds = map[string]Range{
	FeatureHeartRate:        {Min: 40, Max: 200},
	FeatureSystolicBP:       {Min: 60, Max: 200},
	FeatureDiastolicBP:      {Min: 40, Max: 130},
	FeatureOxygenSaturation: {Min: 70, Max: 100},
	FeatureRespiratoryRate:  {Min: 8, Max: 45},
	FeatureTemperature:      {Min: 34, Max: 42},
}

// LabelRange 风险标签范围
var LabelRange = Range{Min: 0, Max: 1}

// VitalRecord 一次生命体征观测
// 温度单位为摄氏度；RiskLabel 仅训练数据携带
type VitalRecord struct {
	HeartRate              float64  `json:"heart_rate"`
	BloodPressureSystolic  float64  `json:"blood_pressure_systolic"`
	BloodPressureDiastolic float64  `json:"blood_pressure_diastolic"`
	OxygenSaturation       float64  `json:"oxygen_saturation"`
	RespiratoryRate        float64  `json:"respiratory_rate"`
	Temperature            float64  `json:"temperature"`
	RiskLabel              *float64 `json:"risk_label,omitempty"`
}

// Value 按特征名取值
func (r VitalRecord) Value(feature string) (float64, bool) {
	switch feature {
	case FeatureHeartRate:
		return r.HeartRate, true
	case FeatureSystolicBP:
		return r.BloodPressureSystolic, true
	case FeatureDiastolicBP:
		return r.BloodPressureDiastolic, true
	case FeatureOxygenSaturation:
		return r.OxygenSaturation, true
	case FeatureRespiratoryRate:
		return r.RespiratoryRate, true
	case FeatureTemperature:
		return r.Temperature, true
	}
	return 0, false
}

// Set 按特征名赋值
func (r *VitalRecord) Set(feature string, v float64) bool {
	switch feature {
	case FeatureHeartRate:
		r.HeartRate = v
	case FeatureSystolicBP:
		r.BloodPressureSystolic = v
	case FeatureDiastolicBP:
		r.BloodPressureDiastolic = v
	case FeatureOxygenSaturation:
		r.OxygenSaturation = v
	case FeatureRespiratoryRate:
		r.RespiratoryRate = v
	case FeatureTemperature:
		r.Temperature = v
	default:
		return false
	}
	return true
}

// Unlabeled 返回去掉标签的副本
func (r VitalRecord) Unlabeled() VitalRecord {
	r.RiskLabel = nil
	return r
}

// WithLabel 返回带标签的副本
func (r VitalRecord) WithLabel(label float64) VitalRecord {
	r.RiskLabel = &label
	return r
}

// Validate 校验所有体征都在生理合理范围内（不做截断）
func (r VitalRecord) Validate() error {
	for _, name := range FeatureNames {
		v, _ := r.Value(name)
		b := PlausibleBounds[name]
		if !b.Contains(v) {
			return &InvalidRecordError{Field: name, Value: v, Min: b.Min, Max: b.Max}
		}
	}
	return nil
}

// ValidateLabeled 校验体征以及训练标签
func (r VitalRecord) ValidateLabeled() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.RiskLabel == nil {
		return &InvalidRecordError{Field: LabelColumn, Missing: true}
	}
	if !LabelRange.Contains(*r.RiskLabel) {
		return &InvalidRecordError{Field: LabelColumn, Value: *r.RiskLabel, Min: LabelRange.Min, Max: LabelRange.Max}
	}
	return nil
}

// VitalInput 外部输入（HTTP 请求体等），字段缺失时为 nil
type VitalInput struct {
	HeartRate              *float64 `json:"heart_rate"`
	BloodPressureSystolic  *float64 `json:"blood_pressure_systolic"`
	BloodPressureDiastolic *float64 `json:"blood_pressure_diastolic"`
	OxygenSaturation       *float64 `json:"oxygen_saturation"`
	RespiratoryRate        *float64 `json:"respiratory_rate"`
	Temperature            *float64 `json:"temperature"`
}

// ToRecord 转换为 VitalRecord；缺失字段返回 InvalidRecordError，范围校验交给评分环节
func (in VitalInput) ToRecord() (VitalRecord, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{FeatureHeartRate, in.HeartRate},
		{FeatureSystolicBP, in.BloodPressureSystolic},
		{FeatureDiastolicBP, in.BloodPressureDiastolic},
		{FeatureOxygenSaturation, in.OxygenSaturation},
		{FeatureRespiratoryRate, in.RespiratoryRate},
		{FeatureTemperature, in.Temperature},
	}

	var r VitalRecord
	for _, f := range fields {
		if f.v == nil {
			return VitalRecord{}, &InvalidRecordError{Field: f.name, Missing: true}
		}
		r.Set(f.name, *f.v)
	}
	return r, nil
}
