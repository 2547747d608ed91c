package redis

import (
	"context"
	"fmt"
	"time"

	"wisefido-risk/owl-common/config"

	"github.com/go-redis/redis/v8"
)

// Client Redis 客户端类型别名
type Client = redis.Client

// NewRedisClient 创建 Redis 客户端
// 阻塞读（XREADGROUP BLOCK）的超时由 go-redis 按 Block 时长自动放宽，不受 ReadTimeout 限制
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   1,
	})
}

// Ping 测试 Redis 连接
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return nil
}

// Close 关闭 Redis 连接，client 可为空
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
