package monitor

import (
	"context"
	"fmt"
	"time"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/models"
	"wisefido-risk/internal/simulator"
	rediscommon "wisefido-risk/owl-common/redis"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type bed struct {
	id      string
	profile simulator.Profile
	synth   *simulator.Synthesizer
}

// Producer 按固定间隔为每个床位生成一次模拟体征并写入 Redis Stream
type Producer struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
	beds        []bed
	now         func() time.Time
}

// NewProducer 创建体征生产者；每个床位使用独立的非确定性随机源
func NewProducer(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (*Producer, error) {
	beds := make([]bed, 0, len(cfg.Monitor.Beds))
	for _, b := range cfg.Monitor.Beds {
		profile, err := simulator.ParseProfile(b.Profile)
		if err != nil {
			return nil, fmt.Errorf("bed %s: %w", b.ID, err)
		}
		beds = append(beds, bed{id: b.ID, profile: profile, synth: simulator.NewUnseeded()})
	}

	return &Producer{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
		beds:        beds,
		now:         time.Now,
	}, nil
}

// Start 启动生产循环，ctx 取消时返回
func (p *Producer) Start(ctx context.Context) error {
	interval := p.config.Monitor.Interval
	p.logger.Info("Vitals producer started",
		zap.String("stream", p.config.Monitor.Stream),
		zap.Int("beds", len(p.beds)),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.PublishOnce(ctx); err != nil {
			p.logger.Error("Failed to publish vitals", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Vitals producer stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PublishOnce 为每个床位发布一条样本，返回第一个发布错误
func (p *Producer) PublishOnce(ctx context.Context) error {
	var firstErr error
	for _, b := range p.beds {
		snap := models.Snapshot{
			SampleID:  uuid.NewString(),
			BedID:     b.id,
			Profile:   string(b.profile),
			Timestamp: p.now().UTC(),
			Vitals:    b.synth.SampleProfile(b.profile),
		}

		id, err := rediscommon.PublishJSONToStream(ctx, p.redisClient, p.config.Monitor.Stream, p.config.Monitor.StreamMaxLen, snap)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("bed %s: %w", b.id, err)
			}
			continue
		}

		p.logger.Debug("Published vitals sample",
			zap.String("bed_id", b.id),
			zap.String("sample_id", snap.SampleID),
			zap.String("message_id", id),
		)
	}
	return firstErr
}
