package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"moblaw.ru/legal-assistant/internal/logger"
)

func TestNewDeduperValidation(t *testing.T) {
	_, err := NewDeduper(nil, "localhost:6379")
	assert.Error(t, err)

	_, err = NewDeduper(logger.NewNop(), " ")
	assert.ErrorContains(t, err, "REDIS_ADDR")
}

func TestNewDeduperUnreachable(t *testing.T) {
	_, err := NewDeduper(logger.NewNop(), "127.0.0.1:1")
	assert.ErrorContains(t, err, "redis ping")
}

func TestMarkSeenSurfacesErrors(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	d := newDeduper(logger.NewNop(), rdb)
	defer d.Close()

	first, err := d.MarkSeen(context.Background(), "ABC")
	assert.Error(t, err)
	assert.False(t, first)
	assert.Error(t, d.Forget(context.Background(), "ABC"))
}
