package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis is a redsync mutex shared by every replica.  Expiry bounds how long
// a crashed holder can block others.
type Redis struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
	log    *zap.Logger
}

func NewRedis(rdb *redis.Client, expiry time.Duration, log *zap.Logger) *Redis {
	if expiry <= 0 {
		expiry = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(rdb)),
		expiry: expiry,
		tries:  64,
		log:    log,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	m := r.rs.NewMutex("lock:"+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(r.tries),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if ok, err := m.UnlockContext(ctx); err != nil || !ok {
				r.log.Warn("release lock", zap.String("key", key), zap.Bool("ok", ok), zap.Error(err))
			}
		})
	}, nil
}
