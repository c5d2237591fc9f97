package proxy

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/conduit/pkg/providers"
	"mercator-hq/conduit/pkg/telemetry/logging"
	"mercator-hq/conduit/pkg/telemetry/metrics"
	"mercator-hq/conduit/pkg/telemetry/tracing"
	"mercator-hq/conduit/pkg/tokens"
)

// MsgInvalidKeyFormat is returned when a key fails the local format check.
const MsgInvalidKeyFormat = "Invalid API key format"

// ExecutorConfig wires an Executor. Registry, Adapters and Transport are
// required; the rest are optional.
type ExecutorConfig struct {
	Registry  *providers.Registry
	Adapters  map[string]providers.Adapter
	Transport *providers.Transport

	// Estimator fills token usage the vendor did not report.
	Estimator tokens.Estimator

	Tracer  *tracing.Tracer
	Metrics *metrics.Collector

	// Timeout bounds a buffered call and the connect phase of a stream.
	// A provider's own timeout takes precedence. Zero means no bound.
	Timeout time.Duration

	// StreamIdleTimeout cuts a stream whose vendor stays silent this long.
	StreamIdleTimeout time.Duration
}

// Executor performs exactly one upstream call per request. It never retries.
type Executor struct {
	registry  *providers.Registry
	adapters  map[string]providers.Adapter
	transport *providers.Transport
	estimator tokens.Estimator
	tracer    *tracing.Tracer
	metrics   *metrics.Collector

	timeout           time.Duration
	streamIdleTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.Registry == nil {
		return nil, errors.New("executor: registry is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("executor: transport is required")
	}
	for _, id := range cfg.Registry.Providers() {
		if _, ok := cfg.Adapters[id]; !ok {
			return nil, errors.New("executor: no adapter for provider " + id)
		}
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = tracing.Noop()
	}

	return &Executor{
		registry:          cfg.Registry,
		adapters:          cfg.Adapters,
		transport:         cfg.Transport,
		estimator:         cfg.Estimator,
		tracer:            tracer,
		metrics:           cfg.Metrics,
		timeout:           cfg.Timeout,
		streamIdleTimeout: cfg.StreamIdleTimeout,
		now:               time.Now,
		newID:             uuid.NewString,
	}, nil
}

// prepare resolves the provider and checks the key format. It never
// touches the network.
func (e *Executor) prepare(req *providers.ProxyRequest) (providers.ProviderConfig, providers.Adapter, error) {
	cfg, err := e.registry.GetConfig(req.Provider)
	if err != nil {
		return providers.ProviderConfig{}, nil, err
	}

	adapter, ok := e.adapters[req.Provider]
	if !ok {
		return providers.ProviderConfig{}, nil, providers.NewUnknownProvider(req.Provider)
	}

	if !e.registry.ValidateAPIKeyFormat(req.Provider, req.APIKey) {
		return providers.ProviderConfig{}, nil, providers.NewInvalidAPIKey(req.Provider, MsgInvalidKeyFormat)
	}
	return cfg, adapter, nil
}

func (e *Executor) timeoutFor(cfg providers.ProviderConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return e.timeout
}

// ExecuteAIRequest sends req as a buffered completion and returns the
// normalized response with metadata attached. req.Stream is ignored.
func (e *Executor) ExecuteAIRequest(ctx context.Context, req *providers.ProxyRequest) (*providers.UnifiedResponse, error) {
	cfg, adapter, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	buffered := *req
	buffered.Stream = false

	ureq, err := adapter.BuildRequest(&buffered)
	if err != nil {
		return nil, e.scrub(providers.AsProxyError(err), req)
	}

	if timeout := e.timeoutFor(cfg); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, tracing.SpanProviderRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.ProviderAttributes(req.Provider, req.Model, false)...),
	)
	defer span.End()

	start := e.now()

	resp, err := e.transport.Do(ctx, req.Provider, ureq)
	if err != nil {
		return nil, e.fail(span, req, err)
	}
	tracing.SetStatusCode(span, resp.StatusCode)

	body, err := providers.ReadBody(req.Provider, resp)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = providers.NewTransportError(req.Provider, "provider request timed out", ctx.Err())
		}
		return nil, e.fail(span, req, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, e.fail(span, req, adapter.ParseError(resp.StatusCode, resp.Header, body))
	}

	unified, err := adapter.ParseResponse(body)
	if err != nil {
		return nil, e.fail(span, req, err)
	}

	end := e.now()
	e.metrics.RecordProviderLatency(req.Provider, req.Model, end.Sub(start))

	unified.ID = logging.GetRequestID(ctx)
	if unified.ID == "" {
		unified.ID = e.newID()
	}
	unified.Provider = req.Provider
	if unified.Model == "" {
		unified.Model = req.Model
	}
	unified.Metadata = providers.NewMetadata(start, end)

	if e.estimator != nil {
		unified.Usage = tokens.FillUsage(e.estimator, unified.Usage, req.Messages, unified.Content, req.Model)
	}
	if u := unified.Usage; u != nil {
		tracing.SetTokenAttributes(span, u.PromptTokens, u.CompletionTokens, u.Estimated)
		e.metrics.RecordTokens(req.Provider, unified.Model, u.PromptTokens, u.CompletionTokens, u.Estimated)
	}
	tracing.SetStatus(span, nil)

	return unified, nil
}

// ExecuteStreamingRequest opens a vendor stream for req. The returned Stream
// is in the Streaming state; no chunk has been read yet. Failures while
// connecting, including a non-2xx vendor status, are returned as errors and
// no Stream is created.
func (e *Executor) ExecuteStreamingRequest(ctx context.Context, req *providers.ProxyRequest) (*Stream, error) {
	cfg, adapter, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	streaming := *req
	streaming.Stream = true

	ureq, err := adapter.BuildRequest(&streaming)
	if err != nil {
		return nil, e.scrub(providers.AsProxyError(err), req)
	}

	upstreamCtx, cancel := context.WithCancel(ctx)
	upstreamCtx, span := e.tracer.Start(upstreamCtx, tracing.SpanProviderRequest,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.ProviderAttributes(req.Provider, req.Model, true)...),
	)

	s := newStream(streamParams{
		request:     req,
		adapter:     adapter,
		cancel:      cancel,
		span:        span,
		metrics:     e.metrics,
		estimator:   e.estimator,
		idleTimeout: e.streamIdleTimeout,
	})
	s.setState(StateConnecting)

	start := e.now()

	// The connect timer bounds the wait for response headers only; once
	// the stream is open the idle timeout takes over.
	var timedOut atomic.Bool
	var timer *time.Timer
	if timeout := e.timeoutFor(cfg); timeout > 0 {
		timer = time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			cancel()
		})
	}

	resp, err := e.transport.Do(upstreamCtx, req.Provider, ureq)
	if timer != nil && !timer.Stop() && err == nil {
		resp.Body.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		if timedOut.Load() {
			err = providers.NewTransportError(req.Provider, "provider request timed out", err)
		}
		return nil, s.failConnect(e.fail(span, req, err))
	}
	tracing.SetStatusCode(span, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, readErr := providers.ReadBody(req.Provider, resp)
		if readErr != nil {
			return nil, s.failConnect(e.fail(span, req, readErr))
		}
		return nil, s.failConnect(e.fail(span, req, adapter.ParseError(resp.StatusCode, resp.Header, body)))
	}

	e.metrics.RecordProviderLatency(req.Provider, req.Model, e.now().Sub(start))
	s.open(upstreamCtx, resp.Body)
	return s, nil
}

// fail classifies err, scrubs it, and records it on the span and metrics.
func (e *Executor) fail(span trace.Span, req *providers.ProxyRequest, err error) *providers.ProxyError {
	perr := e.scrub(providers.AsProxyError(err), req)
	tracing.SetErrorCode(span, string(perr.Code), perr)
	e.metrics.RecordProviderError(req.Provider, string(perr.Code))
	return perr
}

// scrub removes the caller's key from everything that may be relayed.
func (e *Executor) scrub(perr *providers.ProxyError, req *providers.ProxyRequest) *providers.ProxyError {
	if perr.Provider == "" {
		perr.Provider = req.Provider
	}
	perr.Message = providers.ScrubSecret(perr.Message, req.APIKey)
	perr.ProviderDetail = providers.ScrubSecret(perr.ProviderDetail, req.APIKey)
	return perr
}
