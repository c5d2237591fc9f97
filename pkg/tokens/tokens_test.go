package tokens

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/providers"
)

func testConfig() *config.TokensConfig {
	return &config.TokensConfig{
		Estimator: "simple",
		Models: map[string]float64{
			"default":          4.0,
			"claude":           2.0,
			"claude-3-5-haiku": 5.0,
		},
	}
}

// ============================================================================
// SimpleEstimator
// ============================================================================

func TestSimpleEstimator_EstimateText(t *testing.T) {
	e := NewSimpleEstimator(testConfig())

	tests := []struct {
		name  string
		text  string
		model string
		want  int
	}{
		{"empty", "", "gpt-4o", 0},
		{"short text rounds up to one", "hi", "gpt-4o", 1},
		{"default ratio", "abcdefghijklmnop", "gpt-4o", 4},
		{"prefix ratio", "abcdefghijklmnop", "claude-3-opus", 8},
		{"longest prefix wins", "abcdefghijklmnopqrst", "claude-3-5-haiku-20241022", 4},
		{"runes not bytes", "ééééééééé", "gpt-4o", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EstimateText(tt.text, tt.model); got != tt.want {
				t.Errorf("EstimateText(%q, %q) = %d, want %d", tt.text, tt.model, got, tt.want)
			}
		})
	}
}

func TestSimpleEstimator_NoConfig(t *testing.T) {
	e := NewSimpleEstimator(nil)
	if got := e.EstimateText("abcdefgh", "anything"); got != 2 {
		t.Errorf("EstimateText with built-in ratio = %d, want 2", got)
	}
}

func TestSimpleEstimator_EstimateMessages(t *testing.T) {
	e := NewSimpleEstimator(testConfig())

	if got := e.EstimateMessages(nil, "gpt-4o"); got != 0 {
		t.Errorf("empty messages = %d, want 0", got)
	}

	msgs := []providers.Message{
		{Role: providers.RoleUser, Content: "abcdefgh"},
	}
	// overhead 3 + role "user" 1 + content 2 + conversation 3
	if got := e.EstimateMessages(msgs, "gpt-4o"); got != 9 {
		t.Errorf("EstimateMessages = %d, want 9", got)
	}
}

// ============================================================================
// TiktokenEstimator
// ============================================================================

func TestResolveEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", EncodingO200kBase},
		{"GPT-4o", EncodingO200kBase},
		{"gpt-4-turbo", EncodingCL100kBase},
		{"gpt-3.5-turbo", EncodingCL100kBase},
		{"o3-mini", EncodingO200kBase},
		{"claude-3-5-haiku-20241022", EncodingCL100kBase},
		{"gemini-1.5-flash", EncodingCL100kBase},
	}

	for _, tt := range tests {
		if got := resolveEncoding(tt.model); got != tt.want {
			t.Errorf("resolveEncoding(%q) = %s, want %s", tt.model, got, tt.want)
		}
	}
}

// stubLoader replaces loadEncoding for the duration of the test and counts
// its calls.
func stubLoader(t *testing.T, fn func(string) (*tiktoken.Tiktoken, error)) *atomic.Int32 {
	t.Helper()

	var calls atomic.Int32
	orig := loadEncoding
	loadEncoding = func(name string) (*tiktoken.Tiktoken, error) {
		calls.Add(1)
		return fn(name)
	}
	t.Cleanup(func() { loadEncoding = orig })
	return &calls
}

func TestTiktokenEstimator_EstimatingNeverLoads(t *testing.T) {
	calls := stubLoader(t, func(string) (*tiktoken.Tiktoken, error) {
		return nil, errors.New("offline")
	})

	e := NewTiktokenEstimator(NewSimpleEstimator(testConfig()))

	if got := e.EstimateText("abcdefghijklmnop", "gpt-4o"); got != 4 {
		t.Errorf("fallback EstimateText = %d, want 4", got)
	}
	msgs := []providers.Message{{Role: providers.RoleUser, Content: "abcdefgh"}}
	if got := e.EstimateMessages(msgs, "gpt-4o"); got == 0 {
		t.Error("fallback EstimateMessages = 0, want an estimate")
	}
	FillUsage(e, nil, msgs, "some completion text", "gpt-4o")

	if n := calls.Load(); n != 0 {
		t.Errorf("encoding loaded %d times while estimating, want 0", n)
	}
	if got := e.EstimateText("", "gpt-4o"); got != 0 {
		t.Errorf("empty text = %d, want 0", got)
	}
}

func TestTiktokenEstimator_LoadFailureKeepsFallback(t *testing.T) {
	calls := stubLoader(t, func(string) (*tiktoken.Tiktoken, error) {
		return nil, errors.New("offline")
	})

	e := NewTiktokenEstimator(NewSimpleEstimator(testConfig()))

	err := e.Load(context.Background())
	if err == nil {
		t.Fatal("expected load error")
	}
	if !strings.Contains(err.Error(), "offline") {
		t.Errorf("error = %v, want loader cause", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("loader called %d times, want 2", n)
	}
	if e.Loaded(EncodingCL100kBase) || e.Loaded(EncodingO200kBase) {
		t.Error("failed encodings reported as loaded")
	}
	if got := e.EstimateText("abcdefghijklmnop", "gpt-4o"); got != 4 {
		t.Errorf("EstimateText after failed load = %d, want 4", got)
	}
}

func TestTiktokenEstimator_LoadIsBounded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stubLoader(t, func(string) (*tiktoken.Tiktoken, error) {
		<-release
		return nil, errors.New("released")
	})

	e := NewTiktokenEstimator(NewSimpleEstimator(testConfig()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Load(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Load error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Load took %v with a stalled loader", elapsed)
	}

	done := make(chan int, 1)
	go func() { done <- e.EstimateText("abcdefghijklmnop", "gpt-4") }()
	select {
	case got := <-done:
		if got != 4 {
			t.Errorf("EstimateText during stalled load = %d, want 4", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EstimateText blocked behind a stalled load")
	}
}

func TestLoadEstimator_IgnoresSimple(t *testing.T) {
	calls := stubLoader(t, func(string) (*tiktoken.Tiktoken, error) {
		return nil, errors.New("offline")
	})

	LoadEstimator(context.Background(), NewSimpleEstimator(testConfig()), time.Second)
	if n := calls.Load(); n != 0 {
		t.Errorf("loader called %d times for the simple estimator", n)
	}

	LoadEstimator(context.Background(), NewTiktokenEstimator(NewSimpleEstimator(testConfig())), time.Second)
	if n := calls.Load(); n != 2 {
		t.Errorf("loader called %d times for tiktoken, want 2", n)
	}
}

// ============================================================================
// New / FillUsage
// ============================================================================

func TestNew(t *testing.T) {
	cfg := testConfig()

	est, err := New(cfg)
	if err != nil {
		t.Fatalf("New(simple) failed: %v", err)
	}
	if _, ok := est.(*SimpleEstimator); !ok {
		t.Errorf("expected *SimpleEstimator, got %T", est)
	}

	cfg.Estimator = "tiktoken"
	est, err = New(cfg)
	if err != nil {
		t.Fatalf("New(tiktoken) failed: %v", err)
	}
	if _, ok := est.(*TiktokenEstimator); !ok {
		t.Errorf("expected *TiktokenEstimator, got %T", est)
	}

	cfg.Estimator = "bpe"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown estimator")
	}
}

func TestFillUsage(t *testing.T) {
	e := NewSimpleEstimator(testConfig())
	msgs := []providers.Message{{Role: providers.RoleUser, Content: "abcdefgh"}}

	t.Run("complete usage unchanged", func(t *testing.T) {
		in := &providers.Usage{PromptTokens: 5, CompletionTokens: 7}
		out := FillUsage(e, in, msgs, "whatever", "gpt-4o")
		if out.TotalTokens != 12 || out.Estimated {
			t.Errorf("usage = %+v", out)
		}
	})

	t.Run("missing usage estimated", func(t *testing.T) {
		out := FillUsage(e, nil, msgs, "abcdefghijklmnop", "gpt-4o")
		if out.PromptTokens != 9 || out.CompletionTokens != 4 || out.TotalTokens != 13 {
			t.Errorf("usage = %+v", out)
		}
		if !out.Estimated {
			t.Error("expected Estimated to be set")
		}
	})

	t.Run("partial usage keeps reported counts", func(t *testing.T) {
		in := &providers.Usage{PromptTokens: 50}
		out := FillUsage(e, in, msgs, "abcdefghijklmnop", "gpt-4o")
		if out.PromptTokens != 50 || out.CompletionTokens != 4 {
			t.Errorf("usage = %+v", out)
		}
		if in.CompletionTokens != 0 {
			t.Error("input usage must not be mutated")
		}
	})
}
