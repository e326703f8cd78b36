package ratelimit

import (
	"github.com/farmgate/farmgate/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// Login and forgot-password share one budget: 10 attempts burst,
// refilling one every 6 seconds per client key.
const (
	authRate  = 1.0 / 6.0
	authBurst = 10
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Limiter {
	if cfg.RedisAddr == "" {
		return NewLocal(authRate, authBurst)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	return NewTokenBucket(client, authRate, authBurst)
}
