package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wisefido-risk/internal/config"
	"wisefido-risk/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrSnapshotNotFound 床位没有最新快照（未开始监护或已过期）
var ErrSnapshotNotFound = errors.New("snapshot not found")

const (
	latestSuffix  = ":latest"
	historySuffix = ":history"
)

// CacheManager 监护快照缓存
//
//	<prefix><bed>:latest   最新一次评分快照（带 TTL）
//	<prefix><bed>:history  最近 N 次快照（LIST，新的在前）
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// LatestKey 最新快照键
func (c *CacheManager) LatestKey(bedID string) string {
	return c.config.Monitor.KeyPrefix + bedID + latestSuffix
}

// HistoryKey 历史快照键
func (c *CacheManager) HistoryKey(bedID string) string {
	return c.config.Monitor.KeyPrefix + bedID + historySuffix
}

// SaveSnapshot 写入最新快照并追加到历史（同一事务内裁剪到 HistorySize）
func (c *CacheManager) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	if snap.BedID == "" {
		return fmt.Errorf("bed_id is required")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	latestKey := c.LatestKey(snap.BedID)
	historyKey := c.HistoryKey(snap.BedID)
	size := c.config.Monitor.HistorySize

	_, err = c.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, latestKey, data, c.config.Monitor.LatestTTL)
		pipe.LPush(ctx, historyKey, data)
		pipe.LTrim(ctx, historyKey, 0, size-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	c.logger.Debug("Updated monitor cache",
		zap.String("bed_id", snap.BedID),
		zap.String("key", latestKey),
	)
	return nil
}

// GetLatest 读取床位最新快照
func (c *CacheManager) GetLatest(ctx context.Context, bedID string) (*models.Snapshot, error) {
	val, err := c.redisClient.Get(ctx, c.LatestKey(bedID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w for bed: %s", ErrSnapshotNotFound, bedID)
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// GetHistory 读取床位历史快照（新的在前），limit<=0 时返回全部
func (c *CacheManager) GetHistory(ctx context.Context, bedID string, limit int64) ([]models.Snapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	vals, err := c.redisClient.LRange(ctx, c.HistoryKey(bedID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	out := make([]models.Snapshot, 0, len(vals))
	for _, v := range vals {
		var snap models.Snapshot
		if err := json.Unmarshal([]byte(v), &snap); err != nil {
			c.logger.Warn("Skipping malformed history entry",
				zap.String("bed_id", bedID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// ListBeds 扫描所有有最新快照的床位
func (c *CacheManager) ListBeds(ctx context.Context) ([]string, error) {
	prefix := c.config.Monitor.KeyPrefix
	pattern := prefix + "*" + latestSuffix

	var beds []string
	iter := c.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		bedID := strings.TrimSuffix(strings.TrimPrefix(key, prefix), latestSuffix)
		beds = append(beds, bedID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan monitor keys: %w", err)
	}
	return beds, nil
}
