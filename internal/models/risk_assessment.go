package models

import (
	"math"
	"time"
)

// Status 风险等级
type Status string

const (
	StatusSafe     Status = "SAFE"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// 分级阈值（左闭右开：0.35 和 0.65 归入更高一级）
const (
	WarningThreshold  = 0.35
	CriticalThreshold = 0.65
)

// Classify 将风险分数映射为等级；NaN 与评分一致按 0 处理
func Classify(score float64) Status {
	switch {
	case math.IsNaN(score):
		return StatusSafe
	case score < WarningThreshold:
		return StatusSafe
	case score < CriticalThreshold:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// Severity 等级序号（SAFE=0, WARNING=1, CRITICAL=2），用于比较升级/降级
func (s Status) Severity() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return 0
	}
}

// RiskAssessment 评分结果
type RiskAssessment struct {
	Score  float64 `json:"score"`
	Status Status  `json:"status"`
}

// NewRiskAssessment 由分数构造评分结果
func NewRiskAssessment(score float64) RiskAssessment {
	return RiskAssessment{Score: score, Status: Classify(score)}
}

// Snapshot 实时监护的一次采样（bed 维度）
type Snapshot struct {
	SampleID   string          `json:"sample_id"`
	BedID      string          `json:"bed_id"`
	Profile    string          `json:"profile"`
	Timestamp  time.Time       `json:"timestamp"`
	Vitals     VitalRecord     `json:"vitals"`
	Assessment *RiskAssessment `json:"assessment,omitempty"`
}
