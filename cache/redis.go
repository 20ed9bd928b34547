package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

var (
	redisOnce   sync.Once
	redisClient *redis.Client
	redisErr    error
)

// optionsFromEnv 从环境变量读取 Redis 连接配置。
// REDIS_ADDR 缺省为 localhost:6379，REDIS_PASSWORD 与 REDIS_DB 可选。
func optionsFromEnv() *redis.Options {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0
	if rawDB := strings.TrimSpace(os.Getenv("REDIS_DB")); rawDB != "" {
		if parsed, err := strconv.Atoi(rawDB); err == nil && parsed >= 0 {
			db = parsed
		}
	}

	return &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

// GetRedisClient 返回按环境变量初始化的单例 Redis 客户端。
// 首次调用会执行一次 Ping，连接失败时不缓存客户端。
func GetRedisClient() (*redis.Client, error) {
	redisOnce.Do(func() {
		opts := optionsFromEnv()
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			redisErr = fmt.Errorf("cache: ping redis %s failed: %w", opts.Addr, err)
			_ = client.Close()
			return
		}

		redisClient = client
	})

	return redisClient, redisErr
}

// Enabled 报告是否存在可用的 Redis 客户端。
func Enabled() bool {
	client, err := GetRedisClient()
	return err == nil && client != nil
}

// Close 释放单例连接，主要供测试使用。
func Close() error {
	if redisClient == nil {
		return nil
	}
	return redisClient.Close()
}
