package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NoticeGate de-duplicates user-facing transient-error notices. The first
// failure for a user produces a notice; repeats are suppressed until the
// condition clears or the TTL elapses.
type NoticeGate struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewNoticeGate creates a gate backed by Redis.
func NewNoticeGate(redisClient *redis.Client, ttl time.Duration) *NoticeGate {
	return &NoticeGate{redis: redisClient, ttl: ttl}
}

// ShouldNotify reports whether a notice of this kind should be shown for the
// user. The first caller within the TTL wins.
func (g *NoticeGate) ShouldNotify(ctx context.Context, userID, kind string) (bool, error) {
	key := noticeKey(userID, kind)

	set, err := g.redis.SetNX(ctx, key, time.Now().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set notice key: %w", err)
	}
	return set, nil
}

// Clear removes the suppression so the next occurrence notifies again. Call
// on the first successful poll after a failure.
func (g *NoticeGate) Clear(ctx context.Context, userID, kind string) error {
	return g.redis.Del(ctx, noticeKey(userID, kind)).Err()
}

func noticeKey(userID, kind string) string {
	return fmt.Sprintf("notice:%s:%s", userID, kind)
}
