package lock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still carries our token, so an
// expired lock re-acquired by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis is a Locker shared by every process pointing at the same server.
// Locks expire after TTL so a crashed holder cannot wedge an automation.
type Redis struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
}

func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisWithClient(client, cfg.Prefix, cfg.TTL)
}

func NewRedisWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "autosched:lock"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, namespace: prefix, ttl: ttl}
}

func (r *Redis) key(k string) string {
	return fmt.Sprintf("%s:%s", r.namespace, strings.TrimSpace(k))
}

func (r *Redis) TryLock(ctx context.Context, key string) (Release, error) {
	k := r.key(key)
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", k, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(cctx, r.client, []string{k}, token).Err()
		})
	}, nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
