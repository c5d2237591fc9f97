package proxy

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/telemetry/metrics"
	"mercator-hq/conduit/pkg/telemetry/tracing"
	"mercator-hq/conduit/pkg/tokens"
)

// StreamState is the lifecycle position of a Stream.
type StreamState int

const (
	StateIdle StreamState = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateAborted
	StateErrored
)

// String returns the lowercase state name, also used as the metrics outcome.
func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a final state.
func (s StreamState) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateErrored
}

type streamParams struct {
	request     *providers.ProxyRequest
	adapter     providers.Adapter
	cancel      context.CancelFunc
	span        trace.Span
	metrics     *metrics.Collector
	estimator   tokens.Estimator
	idleTimeout time.Duration
}

type readResult struct {
	event *providers.SSEEvent
	err   error
}

// Stream relays one vendor stream as normalized chunks. It reads from the
// vendor only inside Next.
type Stream struct {
	mu sync.Mutex

	provider    string
	model       string
	apiKey      string
	messages    []providers.Message
	adapter     providers.Adapter
	cancel      context.CancelFunc
	span        trace.Span
	metrics     *metrics.Collector
	estimator   tokens.Estimator
	idleTimeout time.Duration

	upstreamCtx context.Context
	body        io.ReadCloser
	reader      *providers.SSEReader

	state        StreamState
	err          *providers.ProxyError
	content      strings.Builder
	chunks       int
	finishReason string
	usage        *providers.Usage
}

func newStream(p streamParams) *Stream {
	return &Stream{
		provider:    p.request.Provider,
		model:       p.request.Model,
		apiKey:      p.request.APIKey,
		messages:    p.request.Messages,
		adapter:     p.adapter,
		cancel:      p.cancel,
		span:        p.span,
		metrics:     p.metrics,
		estimator:   p.estimator,
		idleTimeout: p.idleTimeout,
		state:       StateIdle,
	}
}

func (s *Stream) setState(state StreamState) {
	s.state = state
}

// open moves a connecting stream to Streaming.
func (s *Stream) open(ctx context.Context, body io.ReadCloser) {
	s.upstreamCtx = ctx
	s.body = body
	s.reader = providers.NewSSEReader(body)
	s.state = StateStreaming
	s.metrics.StreamStarted()
}

// failConnect ends a stream that never opened.
func (s *Stream) failConnect(perr *providers.ProxyError) *providers.ProxyError {
	s.state = StateErrored
	s.err = perr
	s.cancel()
	s.span.End()
	return perr
}

// State returns the current state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Provider returns the provider id the stream was opened against.
func (s *Stream) Provider() string {
	return s.provider
}

// Model returns the requested model.
func (s *Stream) Model() string {
	return s.model
}

// Next returns the next chunk with content, or the terminal chunk with Done
// set. After the terminal chunk it returns io.EOF. If ctx ends first the
// stream is Aborted; if the vendor fails or stays silent past the idle
// timeout it is Errored. Both close the upstream body and return a
// *providers.ProxyError, which every later call returns again.
func (s *Stream) Next(ctx context.Context) (*providers.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateCompleted:
		return nil, io.EOF
	case StateAborted, StateErrored:
		return nil, s.err
	case StateStreaming:
	default:
		return nil, providers.NewError(providers.CodeUnknownError, "stream is not open")
	}

	for {
		ev, err := s.read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s.complete(), nil
			}
			return nil, err
		}

		chunk, err := s.adapter.ParseStreamChunk(ev)
		if err != nil {
			return nil, s.finish(StateErrored, providers.AsProxyError(err))
		}
		if chunk == nil {
			continue
		}

		if chunk.Usage != nil {
			s.mergeUsage(chunk.Usage)
		}
		if chunk.FinishReason != "" {
			s.finishReason = chunk.FinishReason
		}
		if chunk.Done {
			return s.complete(), nil
		}
		if chunk.Delta == "" {
			continue
		}

		s.content.WriteString(chunk.Delta)
		s.chunks++
		return &providers.StreamChunk{Delta: chunk.Delta}, nil
	}
}

// read waits for one SSE event, the caller's context, or the idle timer.
func (s *Stream) read(ctx context.Context) (*providers.SSEEvent, error) {
	results := make(chan readResult, 1)
	go func() {
		ev, err := s.reader.Next()
		results <- readResult{event: ev, err: err}
	}()

	var idle <-chan time.Time
	if s.idleTimeout > 0 {
		timer := time.NewTimer(s.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	select {
	case r := <-results:
		if r.err == nil || errors.Is(r.err, io.EOF) {
			return r.event, r.err
		}
		if ctx.Err() != nil || s.upstreamCtx.Err() != nil {
			return nil, s.finish(StateAborted, providers.NewTransportError(s.provider, "request cancelled", r.err))
		}
		return nil, s.finish(StateErrored, providers.NewTransportError(s.provider, "provider stream interrupted", r.err))

	case <-ctx.Done():
		return nil, s.finish(StateAborted, providers.NewTransportError(s.provider, "request cancelled", ctx.Err()))

	case <-s.upstreamCtx.Done():
		return nil, s.finish(StateAborted, providers.NewTransportError(s.provider, "request cancelled", s.upstreamCtx.Err()))

	case <-idle:
		return nil, s.finish(StateErrored, providers.NewTransportError(s.provider, "provider stream idle timeout", nil))
	}
}

// complete ends the stream normally and returns the terminal chunk.
func (s *Stream) complete() *providers.StreamChunk {
	s.finish(StateCompleted, nil)
	return &providers.StreamChunk{Done: true, FinishReason: s.finishReason}
}

// finish moves the stream to a terminal state and releases the upstream.
func (s *Stream) finish(state StreamState, perr *providers.ProxyError) *providers.ProxyError {
	if s.state.Terminal() {
		return s.err
	}

	if perr != nil {
		perr.Provider = s.provider
		perr.Message = providers.ScrubSecret(perr.Message, s.apiKey)
		perr.ProviderDetail = providers.ScrubSecret(perr.ProviderDetail, s.apiKey)
	}

	s.state = state
	s.err = perr

	s.cancel()
	if s.body != nil {
		_ = s.body.Close()
	}

	s.metrics.StreamFinished(s.provider, state.String())
	if perr != nil {
		s.metrics.RecordProviderError(s.provider, string(perr.Code))
		tracing.SetErrorCode(s.span, string(perr.Code), perr)
	} else {
		tracing.SetStatus(s.span, nil)
	}
	if u := s.usageLocked(); u != nil {
		tracing.SetTokenAttributes(s.span, u.PromptTokens, u.CompletionTokens, u.Estimated)
		if state == StateCompleted {
			s.metrics.RecordTokens(s.provider, s.model, u.PromptTokens, u.CompletionTokens, u.Estimated)
		}
	}
	tracing.SetStreamOutcome(s.span, state.String(), s.chunks)
	s.span.End()

	return perr
}

// mergeUsage keeps the latest non-zero count of each kind. Vendors report
// prompt and completion counts in different events.
func (s *Stream) mergeUsage(u *providers.Usage) {
	if s.usage == nil {
		s.usage = &providers.Usage{}
	}
	if u.PromptTokens > 0 {
		s.usage.PromptTokens = u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		s.usage.CompletionTokens = u.CompletionTokens
	}
	s.usage.TotalTokens = s.usage.PromptTokens + s.usage.CompletionTokens
}

// Usage returns token counts for what has been relayed so far, estimated
// where the vendor did not report them. It is nil without an estimator and
// without vendor counts.
func (s *Stream) Usage() *providers.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.usageLocked()
}

func (s *Stream) usageLocked() *providers.Usage {
	if s.estimator == nil {
		if s.usage == nil {
			return nil
		}
		u := *s.usage
		return &u
	}

	var reported *providers.Usage
	if s.usage != nil {
		u := *s.usage
		reported = &u
	}
	return tokens.FillUsage(s.estimator, reported, s.messages, s.content.String(), s.model)
}

// Close aborts the stream if it has not ended. It is safe to call more than
// once and after the stream completed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStreaming {
		s.finish(StateAborted, providers.NewTransportError(s.provider, "stream closed", nil))
	}
	return nil
}
