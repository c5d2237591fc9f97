package usage

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/conduit/pkg/config"
)

// dayLayout is the row key format for a UTC day.
const dayLayout = "2006-01-02"

// Record is one completed upstream call.
type Record struct {
	Caller           string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Time             time.Time
}

// Totals aggregates usage for a caller over one day.
type Totals struct {
	Requests         int64
	PromptTokens     int64
	CompletionTokens int64
}

// Store persists usage counters.
type Store interface {
	// Increment adds one request and rec's tokens to rec's day.
	Increment(ctx context.Context, rec Record) error

	// Read returns caller's totals for the UTC day containing day.
	Read(ctx context.Context, caller string, day time.Time) (Totals, error)

	// Prune deletes rows for days strictly before the day containing before.
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Close releases resources held by the store.
	Close() error
}

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.UsageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLStore(ctx, SQLConfig{Driver: cfg.Driver, Path: cfg.Path})
	default:
		return nil, fmt.Errorf("unknown usage backend %q", cfg.Backend)
	}
}

// DayKey formats t as the UTC day it falls in.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// NextMidnight returns the start of the UTC day after t.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// RetentionCutoff returns the time before which rows older than days are
// eligible for pruning.
func RetentionCutoff(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, -days)
}
