// Package metrics exposes roundtable's Prometheus collectors.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lalomorales22/roundtable/engine"
)

// Options configures NewCollector.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "roundtable".
	Namespace string
	// Registerer receives the collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Collector holds the round, agent call, artifact and HTTP metrics.
type Collector struct {
	roundsTotal   *prometheus.CounterVec
	roundDuration *prometheus.HistogramVec
	roundSpeakers *prometheus.HistogramVec

	agentCallsTotal   *prometheus.CounterVec
	agentCallDuration *prometheus.HistogramVec

	artifactsTotal *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector creates and registers the collectors.
func NewCollector(optFns ...func(o *Options)) *Collector {
	opts := Options{
		Namespace:  "roundtable",
		Registerer: prometheus.DefaultRegisterer,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	factory := promauto.With(opts.Registerer)
	ns := opts.Namespace

	return &Collector{
		roundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "rounds_total",
				Help:      "Total number of rounds by mode and status",
			},
			[]string{"mode", "status"},
		),
		roundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "round_duration_seconds",
				Help:      "Round duration in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"mode"},
		),
		roundSpeakers: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "round_speakers",
				Help:      "Number of speakers per round",
				Buckets:   prometheus.LinearBuckets(0, 1, 10),
			},
			[]string{"mode"},
		),
		agentCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "agent_calls_total",
				Help:      "Total number of agent calls by outcome",
			},
			[]string{"agent", "vendor", "outcome"},
		),
		agentCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "agent_call_duration_seconds",
				Help:      "Agent call duration in seconds, retries included",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"agent", "vendor"},
		),
		artifactsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "artifacts_total",
				Help:      "Total number of extracted artifacts",
			},
			[]string{"agent", "language"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordRound records one finished round.
func (c *Collector) RecordRound(mode string, speakers int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	c.roundsTotal.WithLabelValues(mode, status).Inc()
	c.roundDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.roundSpeakers.WithLabelValues(mode).Observe(float64(speakers))
}

// RecordAgentCall records one agent call. outcome is "ok" or the error kind.
func (c *Collector) RecordAgentCall(agent, vendor, outcome string, duration time.Duration) {
	c.agentCallsTotal.WithLabelValues(agent, vendor, outcome).Inc()
	c.agentCallDuration.WithLabelValues(agent, vendor).Observe(duration.Seconds())
}

// RecordArtifact records one extracted artifact.
func (c *Collector) RecordArtifact(agent, language string) {
	c.artifactsTotal.WithLabelValues(agent, language).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Register wires the collector into the engine's callbacks.
func (c *Collector) Register(cm *engine.CallbackManager) {
	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackAfterRound,
		func(_ context.Context, cb *engine.CallbackContext) error {
			c.RecordRound(cb.Mode, len(cb.Speakers), cb.Duration, cb.Err)
			return nil
		}))

	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackAfterAgent,
		func(_ context.Context, cb *engine.CallbackContext) error {
			outcome := "ok"
			if cb.AgentErr != nil {
				outcome = string(cb.AgentErr.Kind)
			}
			c.RecordAgentCall(cb.Agent, cb.Vendor, outcome, cb.Duration)
			return nil
		}))

	cm.RegisterCallback(engine.NewFunctionCallback(engine.CallbackOnArtifact,
		func(_ context.Context, cb *engine.CallbackContext) error {
			if cb.Artifact != nil {
				c.RecordArtifact(cb.Agent, cb.Artifact.Language)
			}
			return nil
		}))
}

// HTTPRequests exposes the request counter.
func (c *Collector) HTTPRequests() *prometheus.CounterVec { return c.httpRequestsTotal }
