// Package notify is the outbound notification collaborator. Delivery is
// fire-and-forget: failures are logged, never propagated into the scheduler.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailops/pkg/logger"
)

type Notifier interface {
	Notify(ctx context.Context, recipients []string, taskName, executionID, summary string) error
}

// LogNotifier records the notification in the structured log. Real delivery
// (SMTP, webhook) hangs off this interface outside the core.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Notify(_ context.Context, recipients []string, taskName, executionID, summary string) error {
	logger.Warn("task failure notification",
		zap.String("task", taskName),
		zap.String("execution_id", executionID),
		zap.Strings("recipients", recipients),
		zap.String("summary", summary),
	)
	return nil
}

// ThrottledNotifier suppresses repeat notifications for the same task within
// a TTL window, so a task failing every minute does not page every minute.
// Redis errors fail open: the notification is sent.
type ThrottledNotifier struct {
	inner Notifier
	rdb   *redis.Client
	ttl   time.Duration
}

func NewThrottledNotifier(inner Notifier, rdb *redis.Client, ttl time.Duration) *ThrottledNotifier {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ThrottledNotifier{inner: inner, rdb: rdb, ttl: ttl}
}

func (n *ThrottledNotifier) Notify(ctx context.Context, recipients []string, taskName, executionID, summary string) error {
	key := fmt.Sprintf("mailops:notify:%s", taskName)
	ok, err := n.rdb.SetNX(ctx, key, executionID, n.ttl).Result()
	if err != nil {
		logger.Warn("notification throttle unavailable, sending anyway", zap.Error(err))
		return n.inner.Notify(ctx, recipients, taskName, executionID, summary)
	}
	if !ok {
		logger.Debug("notification suppressed by throttle", zap.String("task", taskName))
		return nil
	}
	return n.inner.Notify(ctx, recipients, taskName, executionID, summary)
}
