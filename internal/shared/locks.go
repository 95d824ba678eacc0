package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PharmacyLockKey builds redis keys for per-pharmacy reconciliation
// critical sections.
func PharmacyLockKey(pharmacyID int64) string {
	return fmt.Sprintf("catalog:pharmacy:%d:lock", pharmacyID)
}

// RunLocker serializes reconciliation runs per pharmacy. Two concurrent
// runs for the same pharmacy would both diff against stale state, so the
// second one must fail fast instead of queueing.
type RunLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLocker builds a RunLocker. The TTL bounds how long a crashed run
// can keep a pharmacy locked.
func NewRunLocker(client *redis.Client, ttl time.Duration) *RunLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RunLocker{client: client, ttl: ttl}
}

// Acquire takes the pharmacy lock, returning an unlock function. The token
// guards against releasing a lock that expired and was re-acquired by a
// later run.
func (l *RunLocker) Acquire(ctx context.Context, pharmacyID int64) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return nil, fmt.Errorf("shared: run locker not initialised")
	}
	key := PharmacyLockKey(pharmacyID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire pharmacy lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	release := func(ctx context.Context) error {
		const script = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`
		return l.client.Eval(ctx, script, []string{key}, token).Err()
	}
	return release, nil
}
