package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opawatch/tracker/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

const lockKey = "tracker:refresh:lock"

// RefreshLock is a redis single-flight guard: concurrent due-checks across
// processes race benignly, but only the SetNX winner runs the refresh. The
// TTL bounds how long a crashed holder can block the next attempt.
type RefreshLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRefreshLock(client *redis.Client, ttl time.Duration) *RefreshLock {
	return &RefreshLock{client: client, ttl: ttl}
}

// Acquire takes the lock, returning a release func and whether acquisition
// succeeded. When redis itself is unreachable the refresh proceeds
// unguarded rather than stalling; the process-local mutex still serializes
// triggers within one process.
func (l *RefreshLock) Acquire(ctx context.Context) (func(), bool) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		logger.Log.WithError(err).Warn("refresh lock unavailable, proceeding unguarded")
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}

	release := func() {
		current, err := l.client.Get(ctx, lockKey).Result()
		if err == nil && current == token {
			l.client.Del(ctx, lockKey)
		}
	}
	return release, true
}
