package maintenance

import (
	"context"
	"time"

	"mercator-hq/conduit/pkg/limits/ratelimit"
	"mercator-hq/conduit/pkg/usage"
)

// UsageRetention prunes usage rows older than days.
func UsageRetention(store usage.Store, days int) Task {
	return Task{
		Name: "usage_retention",
		Run: func(ctx context.Context) (int64, error) {
			return store.Prune(ctx, usage.RetentionCutoff(time.Now(), days))
		},
	}
}

// LimiterPrune forgets rate limiter keys idle for longer than idle.
func LimiterPrune(limiter *ratelimit.Store, idle time.Duration) Task {
	return Task{
		Name: "limiter_prune",
		Run: func(ctx context.Context) (int64, error) {
			return int64(limiter.Prune(idle)), nil
		},
	}
}
