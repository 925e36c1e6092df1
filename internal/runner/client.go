package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aleix-cd/recap-ae-challenge/internal/config"
	"github.com/aleix-cd/recap-ae-challenge/pkg/cache"
	"github.com/aleix-cd/recap-ae-challenge/pkg/client"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisPingTimeout bounds the cache health check at startup.
const redisPingTimeout = 3 * time.Second

// NewClient builds the API client. When cfg.RedisURL is set and reachable,
// responses are cached in Redis; an unreachable Redis only disables the
// cache. The returned close function releases the client and Redis.
func NewClient(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*client.Client, func() error, error) {
	clientCfg := client.DefaultConfig(cfg.APIBase, cfg.UserAgent)
	clientCfg.Timeout = cfg.HTTPTimeout
	clientCfg.RateLimit = cfg.RateLimit
	clientCfg.CacheTTL = cfg.CacheTTL

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		rc, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable - response cache disabled")
		} else {
			redisClient = rc
			clientCfg.Cache = cache.NewManager(rc)
			logger.Info().Dur("ttl", cfg.CacheTTL).Msg("Response cache enabled")
		}
	}

	apiClient, err := client.New(clientCfg)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, nil, fmt.Errorf("create api client: %w", err)
	}

	closeFn := func() error {
		apiClient.Close()
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	}
	return apiClient, closeFn, nil
}

// connectRedis accepts a redis:// URL or a bare host:port address.
func connectRedis(ctx context.Context, raw string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(raw, "://") {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: raw}
	}

	rc := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return rc, nil
}
