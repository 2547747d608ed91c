package monitor

import (
	"encoding/json"
	"fmt"
	"time"

	"wisefido-risk/internal/models"

	"go.uber.org/zap"
)

// Publisher 告警发布接口（owl-common/mqtt.Client 满足该接口）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Alert 风险等级变化告警
type Alert struct {
	BedID          string             `json:"bed_id"`
	SampleID       string             `json:"sample_id"`
	PreviousStatus models.Status      `json:"previous_status"`
	Status         models.Status      `json:"status"`
	Score          float64            `json:"score"`
	Vitals         models.VitalRecord `json:"vitals"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Alerter 床位等级变为 WARNING/CRITICAL 时发布告警；回落到 SAFE 不告警
type Alerter struct {
	publisher   Publisher
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewAlerter 创建告警器；publisher 为 nil 时只记录日志
func NewAlerter(publisher Publisher, topicPrefix string, qos byte, logger *zap.Logger) *Alerter {
	return &Alerter{
		publisher:   publisher,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
	}
}

// Topic 床位告警主题
func (a *Alerter) Topic(bedID string) string {
	return a.topicPrefix + bedID
}

// ShouldAlert 等级发生变化且新等级不是 SAFE；previous 为空视为 SAFE
func ShouldAlert(previous, current models.Status) bool {
	if previous == "" {
		previous = models.StatusSafe
	}
	return previous != current && current != models.StatusSafe
}

// Notify 比较前后等级，需要时发布告警，返回是否已告警
func (a *Alerter) Notify(previous models.Status, snap *models.Snapshot) (bool, error) {
	if snap.Assessment == nil {
		return false, fmt.Errorf("snapshot %s has no assessment", snap.SampleID)
	}
	current := snap.Assessment.Status
	if !ShouldAlert(previous, current) {
		return false, nil
	}
	if previous == "" {
		previous = models.StatusSafe
	}

	alert := Alert{
		BedID:          snap.BedID,
		SampleID:       snap.SampleID,
		PreviousStatus: previous,
		Status:         current,
		Score:          snap.Assessment.Score,
		Vitals:         snap.Vitals,
		Timestamp:      snap.Timestamp,
	}

	a.logger.Warn("Risk status escalated",
		zap.String("bed_id", alert.BedID),
		zap.String("previous_status", string(previous)),
		zap.String("status", string(current)),
		zap.Float64("score", alert.Score),
	)

	if a.publisher == nil {
		return true, nil
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return false, fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := a.publisher.Publish(a.Topic(snap.BedID), a.qos, false, payload); err != nil {
		return false, err
	}
	return true, nil
}
