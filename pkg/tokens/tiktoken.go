package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"mercator-hq/conduit/pkg/providers"
)

// Encoding names used by tiktoken.
const (
	EncodingCL100kBase = "cl100k_base"
	EncodingO200kBase  = "o200k_base"
)

// modelEncodings maps model prefixes to encodings, longest prefix first.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", EncodingO200kBase},
	{"gpt-4.1", EncodingO200kBase},
	{"chatgpt", EncodingO200kBase},
	{"gpt-3.5", EncodingCL100kBase},
	{"gpt-4", EncodingCL100kBase},
	{"o1", EncodingO200kBase},
	{"o3", EncodingO200kBase},
	{"o4", EncodingO200kBase},
}

// loadEncoding is swapped in tests so that no BPE files are fetched.
var loadEncoding = tiktoken.GetEncoding

// TiktokenEstimator counts tokens with tiktoken-go. Encodings are loaded by
// Load, never while estimating; until an encoding is available the fallback
// estimator is used.
type TiktokenEstimator struct {
	fallback Estimator

	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewTiktokenEstimator creates a tiktoken-backed estimator with no
// encodings loaded.
func NewTiktokenEstimator(fallback Estimator) *TiktokenEstimator {
	return &TiktokenEstimator{
		fallback:  fallback,
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// Load fetches every known encoding. It returns when all have loaded or
// when ctx is done, whichever comes first. tiktoken-go cannot cancel a
// fetch, so one still running when ctx ends finishes in the background and
// is used from then on.
func (t *TiktokenEstimator) Load(ctx context.Context) error {
	names := []string{EncodingCL100kBase, EncodingO200kBase}

	load := loadEncoding
	done := make(chan error, len(names))
	for _, name := range names {
		go func(name string) {
			enc, err := load(name)
			if err != nil {
				done <- fmt.Errorf("failed to load encoding %s: %w", name, err)
				return
			}
			t.mu.Lock()
			t.encodings[name] = enc
			t.mu.Unlock()
			done <- nil
		}(name)
	}

	var errs []error
	for range names {
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return fmt.Errorf("loading tiktoken encodings: %w", ctx.Err())
		}
	}
	return errors.Join(errs...)
}

// Loaded reports whether the encoding named name is available.
func (t *TiktokenEstimator) Loaded(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.encodings[name]
	return ok
}

// EstimateText counts tokens in text for model.
func (t *TiktokenEstimator) EstimateText(text string, model string) int {
	if text == "" {
		return 0
	}

	enc := t.encoding(model)
	if enc == nil {
		return t.fallback.EstimateText(text, model)
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateMessages counts prompt tokens for messages.
func (t *TiktokenEstimator) EstimateMessages(messages []providers.Message, model string) int {
	return countMessages(messages, model, t.EstimateText)
}

func (t *TiktokenEstimator) encoding(model string) *tiktoken.Tiktoken {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.encodings[resolveEncoding(model)]
}

// LoadEstimator loads the encodings of est when it is tiktoken-backed,
// waiting at most timeout. A failed load is logged and leaves est on its
// character estimate.
func LoadEstimator(ctx context.Context, est Estimator, timeout time.Duration) {
	t, ok := est.(*TiktokenEstimator)
	if !ok {
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := t.Load(ctx); err != nil {
		slog.Warn("tiktoken encodings unavailable, using character estimate", "error", err)
	}
}

// resolveEncoding picks the encoding for a model. Models from other vendors
// use cl100k_base, which is close enough for an estimate.
func resolveEncoding(model string) string {
	lower := strings.ToLower(model)
	for _, me := range modelEncodings {
		if strings.HasPrefix(lower, me.prefix) {
			return me.encoding
		}
	}
	return EncodingCL100kBase
}
