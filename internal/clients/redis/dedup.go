package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"moblaw.ru/legal-assistant/internal/logger"
)

const (
	defaultKeyPrefix = "webhook:seen:"
	defaultTTL       = 24 * time.Hour
)

// Deduper remembers webhook message ids so repeated deliveries are
// recorded once.
type Deduper struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewDeduper(log *logger.Logger, addr string) (*Deduper, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newDeduper(log, rdb), nil
}

func newDeduper(log *logger.Logger, rdb goredis.UniversalClient) *Deduper {
	return &Deduper{
		log:    log.With("service", "RedisDeduper"),
		rdb:    rdb,
		prefix: defaultKeyPrefix,
		ttl:    defaultTTL,
	}
}

// MarkSeen reports true the first time id is seen within the TTL.
func (d *Deduper) MarkSeen(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Forget releases id so a later redelivery is processed again.
func (d *Deduper) Forget(ctx context.Context, id string) error {
	if err := d.rdb.Del(ctx, d.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (d *Deduper) Close() error {
	return d.rdb.Close()
}
