package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/modelscan-sec/internal/domain/scans"
)

const redisKeyPrefix = "modelscan:result:"

// Redis is a shared ResultCache. Failures degrade to cache misses; the
// scan path never depends on redis being up.
type Redis struct {
	cli *redis.Client
	log *logrus.Entry
}

func NewRedis(ctx context.Context, addr, password string, db int, log *logrus.Entry) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(ctx2).Err(); err != nil {
		return nil, err
	}
	return &Redis{cli: cli, log: log}, nil
}

func (c *Redis) Put(ctx context.Context, id domain.ScanID, res *domain.ScanResult, ttl time.Duration) {
	if res == nil || ttl <= 0 {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		c.log.WithError(err).WithField("scan_id", id).Warn("cache encode failed")
		return
	}
	if err := c.cli.Set(ctx, redisKeyPrefix+string(id), b, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("scan_id", id).Warn("cache write failed")
	}
}

func (c *Redis) Get(ctx context.Context, id domain.ScanID) (*domain.ScanResult, bool) {
	b, err := c.cli.Get(ctx, redisKeyPrefix+string(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("scan_id", id).Warn("cache read failed")
		}
		return nil, false
	}
	var res domain.ScanResult
	if err := json.Unmarshal(b, &res); err != nil {
		c.log.WithError(err).WithField("scan_id", id).Warn("cache decode failed")
		return nil, false
	}
	return &res, true
}

func (c *Redis) Close() error { return c.cli.Close() }
