package cachesvc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/payment"
)

const (
	webhookKeyPrefix = "moveup:webhook:"
	// gateways stop retrying a webhook after about three days
	webhookEventTTL = 72 * time.Hour
)

// RedisEventLog records processed gateway events so replays are acknowledged without work.
type RedisEventLog struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ payment.EventLog = (*RedisEventLog)(nil) // interface compliance check

// NewRedisEventLog connects to the configured Redis and pings it.
func NewRedisEventLog(ctx context.Context, conf *core.Config) (*RedisEventLog, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        conf.Redis.Addr,
		Password:    conf.Redis.Password,
		DB:          conf.Redis.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return &RedisEventLog{rdb: rdb, ttl: webhookEventTTL}, nil
}

func (l *RedisEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, webhookKeyPrefix+eventID).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking webhook event")
	}
	return n > 0, nil
}

func (l *RedisEventLog) Mark(ctx context.Context, eventID string) error {
	if err := l.rdb.SetNX(ctx, webhookKeyPrefix+eventID, time.Now().Unix(), l.ttl).Err(); err != nil {
		return errors.Wrap(err, "marking webhook event")
	}
	return nil
}

func (l *RedisEventLog) Close() error {
	return l.rdb.Close()
}
