package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/rentflow/internal/config"
)

const keyWebhook = "rentflow:webhook:%s:%s"

// WebhookLimiter throttles inbound gateway deliveries per provider and
// source address. Providers retry rejected deliveries, so a burst that
// trips the limit is replayed rather than lost.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewWebhookLimiter returns nil when no redis address is configured,
// which disables throttling.
func NewWebhookLimiter(cfg config.Config) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	if cfg.WebhookRateLimit <= 0 || cfg.WebhookRateBurst <= 0 {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.WebhookRateLimit,
		burst:  cfg.WebhookRateBurst,
	}
}

func (l *WebhookLimiter) Allow(ctx context.Context, provider, source string) (*Result, error) {
	if l == nil || l.bucket == nil {
		return &Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyWebhook, strings.TrimSpace(provider), strings.TrimSpace(source))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
