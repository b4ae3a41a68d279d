package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"inspectpay/inspector"
	"inspectpay/logging"
)

const (
	generationKey = "inspectpay:preview:gen"
	keyPrefix     = "inspectpay:preview:workloads"
	rebuildLock   = 5 * time.Second
)

// WorkloadSource computes workloads from the database.
type WorkloadSource interface {
	ListWorkloads(ctx context.Context, period inspector.Period) ([]inspector.Workload, error)
}

// Cache is a disposable projection of the inspector workload view. Entries
// are keyed by a generation counter, so bumping the counter orphans every
// cached entry at once and TTL expiry reclaims them. Redis failures fall back
// to the source; the cache is never the source of truth.
type Cache struct {
	rdb    *redis.Client
	locker *redislock.Client
	source WorkloadSource
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewCache wraps source. A nil rdb makes the cache a pass-through.
func NewCache(rdb *redis.Client, source WorkloadSource, ttl time.Duration, logger logrus.FieldLogger) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}
	c := &Cache{rdb: rdb, source: source, ttl: ttl, logger: logger}
	if rdb != nil {
		c.locker = redislock.New(rdb)
	}
	return c
}

// ListWorkloads serves the view from Redis, rebuilding it on a miss. Only one
// caller rebuilds a given entry; concurrent callers that miss the lock query
// the source directly.
func (c *Cache) ListWorkloads(ctx context.Context, period inspector.Period) ([]inspector.Workload, error) {
	if c.rdb == nil {
		return c.source.ListWorkloads(ctx, period)
	}

	key, err := c.key(ctx, period)
	if err != nil {
		logging.Error(c.logger, "preview", "ListWorkloads", "read generation", nil, err)
		return c.source.ListWorkloads(ctx, period)
	}

	if cached, ok := c.read(ctx, key); ok {
		return cached, nil
	}

	lock, err := c.locker.Obtain(ctx, "lock:"+key, rebuildLock, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return c.source.ListWorkloads(ctx, period)
	} else if err != nil {
		logging.Error(c.logger, "preview", "ListWorkloads", "obtain rebuild lock", key, err)
		return c.source.ListWorkloads(ctx, period)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()

	if cached, ok := c.read(ctx, key); ok {
		return cached, nil
	}

	workloads, err := c.source.ListWorkloads(ctx, period)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(workloads)
	if err != nil {
		return nil, fmt.Errorf("preview: marshal workloads: %w", err)
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logging.Error(c.logger, "preview", "ListWorkloads", "store projection", key, err)
	}
	return workloads, nil
}

// Invalidate bumps the generation so the next read rebuilds.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("preview: bump generation: %w", err)
	}
	return nil
}

func (c *Cache) key(ctx context.Context, period inspector.Period) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("%s:%d:%s:%s", keyPrefix, gen, period.Start.Format(time.DateOnly), period.End.Format(time.DateOnly)), nil
}

func (c *Cache) read(ctx context.Context, key string) ([]inspector.Workload, bool) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Error(c.logger, "preview", "read", "get projection", key, err)
		}
		return nil, false
	}
	var workloads []inspector.Workload
	if err := json.Unmarshal(val, &workloads); err != nil {
		logging.Error(c.logger, "preview", "read", "decode projection", key, err)
		return nil, false
	}
	return workloads, true
}
