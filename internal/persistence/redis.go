package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vacvault/vacvault-api/internal/config"
	"github.com/vacvault/vacvault-api/internal/mail"
)

const redisStartupTimeout = 2 * time.Second

// Redis wraps the go-redis client backing the mail outbox.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis. An unreachable server is logged but not fatal; the outbox
// worker keeps retrying once it comes back.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisStartupTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisStartupTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	}

	return &Redis{Client: client}
}

// Outbox returns the mail queue rooted at key and logs its current backlog.
func (r *Redis) Outbox(ctx context.Context, key string, logger *zap.Logger) *mail.RedisQueue {
	queue := mail.NewRedisQueue(r.Client, key)

	statsCtx, cancel := context.WithTimeout(ctx, redisStartupTimeout)
	defer cancel()
	ready, delayed, dead, err := queue.Stats(statsCtx)
	if err != nil {
		logger.Warn("unable to read mail outbox backlog", zap.String("key", key), zap.Error(err))
		return queue
	}
	logger.Info("mail outbox attached",
		zap.String("key", key),
		zap.Int64("ready", ready),
		zap.Int64("delayed", delayed),
		zap.Int64("dead", dead))
	return queue
}

// Configured reports whether a client was created.
func (r *Redis) Configured() bool {
	return r != nil && r.Client != nil
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Configured() {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Configured() {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
