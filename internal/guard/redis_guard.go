package guard

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// acquireScript atomically checks and sets the lock with a safety TTL so a
// crashed holder cannot wedge the key forever.
var acquireScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('SET', KEYS[1], '1', 'EX', ARGV[1])
	return 1
`)

// RedisGuard is the multi-process guard implementation, backing the same
// single-flight contract with a shared Redis key per operation class.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisGuard creates a guard over an initialized Redis client.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisGuard{
		client: client,
		prefix: "opguard:",
		ttl:    ttl,
		log:    zap.L().With(zap.String("component", "guard")),
	}
}

// TryAcquire atomically checks and sets the lock for key. A Redis failure is
// reported as "busy": refusing a bulk operation is safer than running it twice.
func (g *RedisGuard) TryAcquire(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := acquireScript.Run(ctx, g.client, []string{g.prefix + key}, int(g.ttl.Seconds())).Result()
	if err != nil {
		g.log.Warn("guard acquire failed, treating as busy",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	acquired, ok := res.(int64)
	return ok && acquired == 1
}

// Release frees the lock.
func (g *RedisGuard) Release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		g.log.Warn("guard release failed",
			zap.String("key", key),
			zap.Error(err))
	}
}
