package service

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/monitor"
	"wisefido-risk/internal/repository"
	"wisefido-risk/internal/scorer"
	"wisefido-risk/owl-common/database"
	mqttcommon "wisefido-risk/owl-common/mqtt"
	rediscommon "wisefido-risk/owl-common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MonitorService 实时监护服务：模拟床位采样 → Redis Stream → 评分 → 缓存 / 告警
type MonitorService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	model       *scorer.TrainedModel
	cache       *monitor.CacheManager
	producer    *monitor.Producer
	consumer    *monitor.Consumer
}

// NewMonitorService 创建监护服务（连接 Redis、MQTT，启用注册表时连接 PostgreSQL）
func NewMonitorService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		closeConnections(logger, redisClient, nil)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var db *sql.DB
	var source ModelSource
	if cfg.Model.UseRegistry {
		var err error
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			closeConnections(logger, redisClient, nil)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		source = repository.NewModelRegistry(db, logger)
	}

	model, err := NewModelLoader(source, cfg.Model.ID, cfg.Model.Path, logger).Load(ctx)
	if err != nil {
		closeConnections(logger, redisClient, db)
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	// Broker 为空时不发布告警，只记录日志
	var publisher monitor.Publisher
	var mqttClient *mqttcommon.Client
	if cfg.MQTT.Broker != "" {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			closeConnections(logger, redisClient, db)
			return nil, err
		}
		publisher = mqttClient
	} else {
		logger.Warn("MQTT broker not configured, alerts will only be logged")
	}

	svc, err := newMonitorService(cfg, redisClient, model, publisher, logger)
	if err != nil {
		if mqttClient != nil {
			mqttClient.Disconnect()
		}
		closeConnections(logger, redisClient, db)
		return nil, err
	}
	svc.db = db
	svc.mqttClient = mqttClient
	return svc, nil
}

// closeConnections 构造失败时释放已建立的连接，关闭错误只记录日志
func closeConnections(logger *zap.Logger, redisClient *redis.Client, db *sql.DB) {
	if err := multierr.Combine(rediscommon.Close(redisClient), database.Close(db)); err != nil {
		logger.Warn("Failed to close connections", zap.Error(err))
	}
}

// newMonitorService 使用已建立的连接组装服务
func newMonitorService(
	cfg *config.Config,
	redisClient *redis.Client,
	model *scorer.TrainedModel,
	publisher monitor.Publisher,
	logger *zap.Logger,
) (*MonitorService, error) {
	if model == nil {
		return nil, scorer.ErrNilModel
	}

	producer, err := monitor.NewProducer(cfg, redisClient, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	cache := monitor.NewCacheManager(cfg, redisClient, logger)
	alerter := monitor.NewAlerter(publisher, cfg.Monitor.AlertTopicPrefix, cfg.MQTT.QoS, logger)
	consumer := monitor.NewConsumer(cfg, redisClient, model, cache, alerter, logger)

	return &MonitorService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
		model:       model,
		cache:       cache,
		producer:    producer,
		consumer:    consumer,
	}, nil
}

// Cache 监护缓存
func (s *MonitorService) Cache() *monitor.CacheManager {
	return s.cache
}

// Start 启动生产者和消费者，任一返回错误时停止另一个
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Monitor service started",
		zap.String("model_id", s.model.ID()),
		zap.Int("beds", len(s.config.Monitor.Beds)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.producer.Start(gctx)
	})
	g.Go(func() error {
		return s.consumer.Start(gctx)
	})
	return g.Wait()
}

// Stop 关闭所有连接
func (s *MonitorService) Stop(ctx context.Context) error {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	return multierr.Combine(
		rediscommon.Close(s.redisClient),
		database.Close(s.db),
	)
}
