// Package runlock provides best-effort mutual exclusion for batch runs,
// backed by Redis SET NX with a TTL so a crashed holder's lock self-expires.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another invocation already holds the lock.
var ErrHeld = errors.New("runlock: already held")

// Locker acquires and releases named run locks.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Locker. The TTL caps how long a crashed holder can block
// subsequent runs.
func New(rdb *redis.Client, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire takes the named lock, storing token as the holder identity.
// Release with the same token; a mismatched token is a no-op so an expired
// lock re-acquired by a newer run is never released by the old holder.
func (l *Locker) Acquire(ctx context.Context, name, token string) error {
	ok, err := l.rdb.SetNX(ctx, key(name), token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("runlock: acquire %s: %w", name, err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Release frees the lock if token still owns it.
func (l *Locker) Release(ctx context.Context, name, token string) error {
	// Compare-and-delete so we never delete a successor's lock.
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end`
	if err := l.rdb.Eval(ctx, script, []string{key(name)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("runlock: release %s: %w", name, err)
	}
	return nil
}

// MarkRun records the wall-clock time of the latest completed run for the
// named profile, for operational visibility.
func (l *Locker) MarkRun(ctx context.Context, name string, at time.Time) error {
	return l.rdb.Set(ctx, "engage:lastrun:"+name, at.UTC().Format(time.RFC3339), 0).Err()
}

// LastRun returns the recorded last-run time, or the zero time when none.
func (l *Locker) LastRun(ctx context.Context, name string) (time.Time, error) {
	v, err := l.rdb.Get(ctx, "engage:lastrun:"+name).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

func key(name string) string {
	return "engage:lock:" + name
}
