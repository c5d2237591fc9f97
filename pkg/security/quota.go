package security

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/conduit/pkg/usage"
)

// quotaLedger counts each caller's admitted requests for the current UTC
// day. A caller's count is seeded from the usage store on first sight and
// then moves only through tryConsume and refund, so concurrent requests
// cannot all pass the same check.
type quotaLedger struct {
	mu      sync.Mutex
	day     string
	callers map[string]*quotaEntry
}

type quotaEntry struct {
	mu     sync.Mutex
	seeded bool
	count  int64
}

func newQuotaLedger() *quotaLedger {
	return &quotaLedger{callers: make(map[string]*quotaEntry)}
}

// entry returns caller's counter for the day containing now. Counters of
// earlier days are dropped on the first call of a new day.
func (l *quotaLedger) entry(caller string, now time.Time) *quotaEntry {
	day := usage.DayKey(now)

	l.mu.Lock()
	defer l.mu.Unlock()

	if day != l.day {
		l.day = day
		l.callers = make(map[string]*quotaEntry)
	}
	e, ok := l.callers[caller]
	if !ok {
		e = &quotaEntry{}
		l.callers[caller] = e
	}
	return e
}

// tryConsume takes one slot from e if fewer than limit are used. seed is
// called, under e's lock, until it succeeds once. A seed error is returned
// with admitted set and no slot taken.
func (e *quotaEntry) tryConsume(limit int64, seed func() (int64, error)) (admitted, consumed bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.seeded {
		n, err := seed()
		if err != nil {
			return true, false, err
		}
		e.count = n
		e.seeded = true
	}

	if e.count >= limit {
		return false, false, nil
	}
	e.count++
	return true, true, nil
}

func (e *quotaEntry) refund() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.count > 0 {
		e.count--
	}
}

// billing marks whether an admitted request was recorded as usage.
type billing struct {
	billed atomic.Bool
}

type billingKey struct{}

// WithBilling returns a context that MarkBilled can flag.
func WithBilling(ctx context.Context) context.Context {
	return context.WithValue(ctx, billingKey{}, &billing{})
}

// MarkBilled records that the request in ctx counted toward usage. Without
// WithBilling it does nothing.
func MarkBilled(ctx context.Context) {
	if b, ok := ctx.Value(billingKey{}).(*billing); ok {
		b.billed.Store(true)
	}
}

func isBilled(ctx context.Context) bool {
	b, ok := ctx.Value(billingKey{}).(*billing)
	return ok && b.billed.Load()
}
