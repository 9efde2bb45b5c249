package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLimiter — счётчик сообщений в фиксированном окне, общий для всех экземпляров сервиса.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

// Allow учитывает одну отправку и сообщает, укладывается ли она в лимит.
// Если нет, retryAfter показывает, сколько осталось до начала следующего окна.
func (l *RedisLimiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}
	now := l.now().UnixNano()
	bucket := now / int64(l.window)
	key := fmt.Sprintf("%s:%d", l.prefix, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}
	if incr.Val() <= int64(l.limit) {
		return true, 0, nil
	}
	return false, l.window - time.Duration(now%int64(l.window)), nil
}
