package service

import (
	"context"
	"database/sql"
	"net/http"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/dataset"
	"wisefido-risk/internal/httpapi"
	"wisefido-risk/internal/monitor"
	"wisefido-risk/internal/repository"
	"wisefido-risk/owl-common/database"
	rediscommon "wisefido-risk/owl-common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// APIService 风险评分 HTTP 服务
//
// 依赖都是可选的：模型、监护缓存、注册表、数据集概要任一不可用时，对应接口返回 503，其余接口照常服务。
type APIService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	deps        httpapi.Deps
	server      *Server
}

// NewAPIService 创建 API 服务
func NewAPIService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*APIService, error) {
	s := &APIService{config: cfg, logger: logger}

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		logger.Warn("Redis unavailable, monitor endpoints disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		closeConnections(logger, redisClient, nil)
	} else {
		s.redisClient = redisClient
		s.deps.Monitor = monitor.NewCacheManager(cfg, redisClient, logger)
	}

	var source ModelSource
	if cfg.Model.UseRegistry {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			logger.Warn("Database unavailable, model registry disabled", zap.Error(err))
		} else {
			s.db = db
			registry := repository.NewModelRegistry(db, logger)
			source = registry
			s.deps.Models = registry
		}
	}

	model, err := NewModelLoader(source, cfg.Model.ID, cfg.Model.Path, logger).Load(ctx)
	if err != nil {
		logger.Warn("No model loaded, scoring endpoints disabled", zap.Error(err))
	} else {
		s.deps.Model = model
	}

	if cfg.Dataset.CSVPath != "" {
		records, err := dataset.LoadCSV(cfg.Dataset.CSVPath)
		if err != nil {
			logger.Warn("Dataset unavailable, summary endpoint disabled", zap.Error(err))
		} else {
			summary := dataset.Summarize(records)
			s.deps.Summary = &summary
		}
	}

	s.server = NewServer(cfg.HTTP, httpapi.NewRouter(cfg.HTTP, s.deps, logger), logger)
	return s, nil
}

// Handler 路由（测试用）
func (s *APIService) Handler() http.Handler {
	return s.server.httpServer.Handler
}

// Start 启动 HTTP 服务，阻塞直到关闭
func (s *APIService) Start(ctx context.Context) error {
	return s.server.Start()
}

// Stop 关闭 HTTP 服务和连接
func (s *APIService) Stop(ctx context.Context) error {
	err := s.server.Stop(ctx)
	if s.redisClient != nil {
		err = multierr.Append(err, rediscommon.Close(s.redisClient))
	}
	return multierr.Append(err, database.Close(s.db))
}
