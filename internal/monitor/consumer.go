package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/models"
	"wisefido-risk/internal/scorer"
	rediscommon "wisefido-risk/owl-common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// errPoison 消息本身无法处理（格式错误或体征非法），确认后丢弃
var errPoison = errors.New("unprocessable message")

// Consumer 从 Redis Stream 消费体征样本：评分 → 更新缓存 → 等级升级时告警
type Consumer struct {
	config      *config.Config
	redisClient *redis.Client
	model       *scorer.TrainedModel
	cache       *CacheManager
	alerter     *Alerter
	logger      *zap.Logger
}

// NewConsumer 创建体征消费者
func NewConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	model *scorer.TrainedModel,
	cache *CacheManager,
	alerter *Alerter,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		config:      cfg,
		redisClient: redisClient,
		model:       model,
		cache:       cache,
		alerter:     alerter,
		logger:      logger,
	}
}

// Start 启动消费循环（出错时指数退避），ctx 取消时返回
func (c *Consumer) Start(ctx context.Context) error {
	mc := c.config.Monitor
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, mc.Stream, mc.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Vitals consumer started",
		zap.String("stream", mc.Stream),
		zap.String("consumer_group", mc.ConsumerGroup),
		zap.String("consumer_name", mc.ConsumerName),
		zap.String("model_id", c.model.ID()),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume vitals",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration = min(backoffDuration*2, maxBackoff)
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// consume 读取并处理一批消息，返回已确认的消息数
func (c *Consumer) consume(ctx context.Context) (int, error) {
	mc := c.config.Monitor
	messages, err := rediscommon.ReadFromStream(ctx, c.redisClient, mc.Stream, mc.ConsumerGroup, mc.ConsumerName, mc.BatchSize, mc.Block)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream: %w", err)
	}

	acked := 0
	for _, msg := range messages {
		err := c.processMessage(ctx, msg)
		switch {
		case err == nil:
		case errors.Is(err, errPoison):
			c.logger.Warn("Dropping unprocessable message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		default:
			// 不确认，留在 pending 列表中
			c.logger.Error("Failed to process message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}

		if err := rediscommon.AckMessages(ctx, c.redisClient, mc.Stream, mc.ConsumerGroup, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		acked++
	}
	return acked, nil
}

// processMessage 处理单条样本
func (c *Consumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	snap, err := parseSnapshot(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}

	assessment, err := scorer.Score(c.model, snap.Vitals)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRecord) {
			return fmt.Errorf("%w: %v", errPoison, err)
		}
		return err
	}
	snap.Assessment = &assessment

	var previous models.Status
	prev, err := c.cache.GetLatest(ctx, snap.BedID)
	switch {
	case err == nil && prev.Assessment != nil:
		previous = prev.Assessment.Status
	case err != nil && !errors.Is(err, ErrSnapshotNotFound):
		return err
	}

	if err := c.cache.SaveSnapshot(ctx, snap); err != nil {
		return err
	}

	// 告警失败不影响确认，下一次等级变化时会再次触发
	if _, err := c.alerter.Notify(previous, snap); err != nil {
		c.logger.Error("Failed to publish alert",
			zap.String("bed_id", snap.BedID),
			zap.Error(err),
		)
	}

	c.logger.Debug("Scored vitals sample",
		zap.String("bed_id", snap.BedID),
		zap.String("sample_id", snap.SampleID),
		zap.Float64("score", assessment.Score),
		zap.String("status", string(assessment.Status)),
	)
	return nil
}

// parseSnapshot 从 data 字段解析快照
func parseSnapshot(msg rediscommon.StreamMessage) (*models.Snapshot, error) {
	data, ok := msg.Values["data"].(string)
	if !ok || data == "" {
		return nil, fmt.Errorf("message %s has no data field", msg.ID)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snap.BedID == "" {
		return nil, fmt.Errorf("message %s has no bed_id", msg.ID)
	}
	// 样本中携带的评分不可信，统一重新评分
	snap.Assessment = nil
	snap.Vitals = snap.Vitals.Unlabeled()
	return &snap, nil
}
