package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"oldmarket/pkg/config"

	"github.com/redis/go-redis/v9"
)

// InitRedis 初始化 Redis 连接，Address 为空时返回 nil (缓存关闭)
func InitRedis(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password, // 没有密码则留空
		DB:       cfg.Db,       // 默认 0
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}

	log.Println("Redis connected successfully")
	return rdb, nil
}
