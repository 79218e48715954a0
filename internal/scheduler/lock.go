package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/skalibog/bfsignals/internal/config"
)

// Locker блокировка, не дающая запустить задачу повторно, пока идет предыдущий запуск
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// LocalLocker блокировка в пределах процесса
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// снимает блокировку, только если она принадлежит этому процессу
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker блокировка между несколькими экземплярами сервиса
type RedisLocker struct {
	client *redis.Client
	prefix string
	token  string
}

// NewRedisLocker подключается к Redis и проверяет соединение
func NewRedisLocker(ctx context.Context, cfg config.SchedulerConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return newRedisLocker(client, "bfsignals"), nil
}

func newRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, token: uuid.NewString()}
}

func (r *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.wrapKey(key), r.token, ttl).Result()
}

func (r *RedisLocker) Unlock(ctx context.Context, key string) error {
	return unlockScript.Run(ctx, r.client, []string{r.wrapKey(key)}, r.token).Err()
}

func (r *RedisLocker) Close() error {
	return r.client.Close()
}

func (r *RedisLocker) wrapKey(key string) string {
	return fmt.Sprintf("%s:lock:%s", r.prefix, key)
}
