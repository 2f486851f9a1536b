package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/railzwaylabs/renewal/internal/renewal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "renewal:lock:"

// Provide picks the Redis locker when a client is available.
func Provide(client *redis.Client) domain.Locker {
	if client == nil {
		return NewLocal()
	}
	return NewRedis(client)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock with SET NX. Only the holder's token can release it, so an
// expired lock that was re-acquired elsewhere is not removed.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrRenewalInProgress
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{keyPrefix + key}, token).Err()
	}, nil
}

// LocalLocker serialises renewals inside a single process.
type LocalLocker struct {
	mu   sync.Mutex
	seq  uint64
	held map[string]localLease
}

type localLease struct {
	token   uint64
	expires time.Time // zero means no expiry
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLease)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if lease, ok := l.held[key]; ok && (lease.expires.IsZero() || now.Before(lease.expires)) {
		return nil, domain.ErrRenewalInProgress
	}

	l.seq++
	lease := localLease{token: l.seq}
	if ttl > 0 {
		lease.expires = now.Add(ttl)
	}
	l.held[key] = lease

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.held[key]; ok && current.token == lease.token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
