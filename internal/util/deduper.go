package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper is a best-effort, Redis-backed "have I handled this email
// before" cache. It sits in front of the durable high-water mark, not
// instead of it: losing Redis only costs a few duplicate side effects,
// it never loses track of where the engine actually is.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

// SeenBefore marks emailID as processed under handler and reports
// whether it had already been marked. A Redis outage degrades to
// "not seen" rather than blocking processing.
func (d *Deduper) SeenBefore(ctx context.Context, handler, emailID string) bool {
	key := fmt.Sprintf("mailtriage:dedup:%s:%s", handler, emailID)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("dedup check unavailable, treating as unseen", zap.Error(err), zap.String("handler", handler))
		return false
	}
	return !ok
}
