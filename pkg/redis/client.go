package redis

import (
	"github.com/redis/go-redis/v9"

	"mailtriage/pkg/config"
)

// New opens a redis client used for the lock fast-path probe and the
// passive-pass ignore-rule dedupe cache. Neither use is authoritative
// — both tolerate Redis being unavailable by falling back to Postgres
// or to "allow processing".
func New(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
