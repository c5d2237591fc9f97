package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/conduit/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// maxLabelSets bounds distinct provider/model pairs.
const maxLabelSets = 10000

// Collector registers and records every proxy metric.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	providerMetrics *ProviderMetrics
	securityMetrics *SecurityMetrics
	streamMetrics   *StreamMetrics
	cacheMetrics    *CacheMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registering into registry, or into a
// fresh registry when registry is nil.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// LLM latencies, 100ms to 60s
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0}
	}
	if len(cfg.TokenCountBuckets) == 0 {
		cfg.TokenCountBuckets = []float64{10, 100, 500, 1000, 5000, 10000, 50000}
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		requestMetrics:     NewRequestMetrics(cfg, registry),
		providerMetrics:    NewProviderMetrics(cfg, registry),
		securityMetrics:    NewSecurityMetrics(cfg, registry),
		streamMetrics:      NewStreamMetrics(cfg, registry),
		cacheMetrics:       NewCacheMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(maxLabelSets),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// model returns model, or "other" once the label budget is spent.
func (c *Collector) model(provider, model string) string {
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s", provider, model)) {
		return "other"
	}
	return model
}

// RecordRequest records a finished HTTP request. code is the taxonomy code,
// or "OK" on success.
func (c *Collector) RecordRequest(endpoint, provider, code string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordRequest(endpoint, provider, code, duration)
}

// RecordTokens records token usage for a completed call.
func (c *Collector) RecordTokens(provider, model string, prompt, completion int, estimated bool) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordTokens(provider, c.model(provider, model), prompt, completion, estimated)
}

// RecordProviderLatency records the wall time of one upstream call.
func (c *Collector) RecordProviderLatency(provider, model string, latency time.Duration) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.RecordLatency(provider, c.model(provider, model), latency)
}

// RecordProviderError records an upstream failure by taxonomy code.
func (c *Collector) RecordProviderError(provider, code string) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.RecordError(provider, code)
}

// RecordRejection records a security gate rejection.
func (c *Collector) RecordRejection(reason string) {
	if !c.enabled() {
		return
	}
	c.securityMetrics.RecordRejection(reason)
}

// StreamStarted increments the active stream gauge.
func (c *Collector) StreamStarted() {
	if !c.enabled() {
		return
	}
	c.streamMetrics.Started()
}

// StreamFinished decrements the active stream gauge and records outcome.
func (c *Collector) StreamFinished(provider, outcome string) {
	if !c.enabled() {
		return
	}
	c.streamMetrics.Finished(provider, outcome)
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordHit(cacheName)
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss(cacheName string) {
	if !c.enabled() {
		return
	}
	c.cacheMetrics.RecordMiss(cacheName)
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label sets.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality
// distinct label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is known or still fits under the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
