package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
)

type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetTime int64
}

// RateLimitService applies a per-user sliding window over Redis. It
// fails open: with rate limiting disabled, Redis unconfigured, or Redis
// down, every request is allowed.
type RateLimitService struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
}

func NewRateLimitService(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client) *RateLimitService {
	return &RateLimitService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
	}
}

func (s *RateLimitService) Allow(userID string) (bool, *RateLimitInfo) {
	limit := s.config.Auth.RateLimit.Default
	window := s.config.Auth.RateLimit.Window
	now := time.Now()

	info := &RateLimitInfo{
		Limit:     limit,
		Remaining: limit - 1,
		ResetTime: now.Add(window).Unix(),
	}

	if !s.config.Auth.RateLimit.Enabled || s.redisClient == nil {
		return true, info
	}

	key := fmt.Sprintf("rate_limit:user:%s", userID)
	windowStart := now.Add(-window)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.redisClient.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Warn("Rate limit pipeline failed; allowing request")
		return true, info
	}

	// countCmd counted the window before this request was added.
	current := int(countCmd.Val()) + 1
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	info.Remaining = remaining

	return current <= limit, info
}
