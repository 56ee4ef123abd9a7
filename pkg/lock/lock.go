package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker 跨实例互斥。数据库事务仍是正确性的保证，这里只用来减少并发心跳时的事务冲突
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// NopLocker 单实例部署或未启用 redis 时使用
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	Client *redis.Client
	// 获取失败时的重试间隔与次数
	RetryDelay time.Duration
	Retries    int
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client, RetryDelay: 20 * time.Millisecond, Retries: 50}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	for i := 0; ; i++ {
		ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// 过期后释放不会误删他人的锁
				_ = releaseScript.Run(context.Background(), l.Client, []string{key}, token).Err()
			}, nil
		}
		if i >= l.Retries {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.RetryDelay):
		}
	}
}
