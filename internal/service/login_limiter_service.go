package service

import (
	"context"
	"fmt"
	"time"

	"elearning_backend/internal/config"
	"elearning_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// LoginLimiterService 按账号维度限制认证尝试次数，
// 在触发慢哈希之前拦截暴力破解。计数存 Redis，带窗口过期。
type LoginLimiterService struct {
	Redis *redis.Client
	Cfg   *config.Config
}

func NewLoginLimiterService(rdb *redis.Client, cfg *config.Config) *LoginLimiterService {
	return &LoginLimiterService{
		Redis: rdb,
		Cfg:   cfg,
	}
}

func (s *LoginLimiterService) key(scope, subject string) string {
	return fmt.Sprintf("auth_guard:%s:%s", scope, subject)
}

// Allow 记一次尝试并判断是否仍在限额内。
// Redis 不可用时放行并记日志，避免缓存故障导致全站无法登录。
func (s *LoginLimiterService) Allow(ctx context.Context, scope, subject string) bool {
	key := s.key(scope, subject)
	window := time.Duration(s.Cfg.Security.LoginWindowMin) * time.Minute

	count, err := s.Redis.Incr(ctx, key).Result()
	if err != nil {
		logger.Log.Warn("login limiter unavailable", zap.Error(err))
		return true
	}
	if count == 1 {
		s.Redis.Expire(ctx, key, window)
	}

	return count <= int64(s.Cfg.Security.LoginMaxAttempts)
}

// Reset 认证成功后清除计数
func (s *LoginLimiterService) Reset(ctx context.Context, scope, subject string) {
	if err := s.Redis.Del(ctx, s.key(scope, subject)).Err(); err != nil {
		logger.Log.Warn("login limiter reset failed", zap.Error(err))
	}
}
