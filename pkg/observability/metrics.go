package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for processed messages.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// ConsumerMetrics receives the consumer's operational counters.
// Implementations must be safe for concurrent use.
type ConsumerMetrics interface {
	MessageProcessed(outcome string)
	PayloadInvalid()
	AckFailed()
	MessageClaimed()
	ClaimFailed()
	PoolState(running, queued int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ ConsumerMetrics = (*NopMetrics)(nil)

// NewNopMetrics returns a ConsumerMetrics that records nothing.
func NewNopMetrics() *NopMetrics { return &NopMetrics{} }

func (*NopMetrics) MessageProcessed(string) {}
func (*NopMetrics) PayloadInvalid()         {}
func (*NopMetrics) AckFailed()              {}
func (*NopMetrics) MessageClaimed()         {}
func (*NopMetrics) ClaimFailed()            {}
func (*NopMetrics) PoolState(int, int)      {}

// PrometheusMetrics implements ConsumerMetrics backed by Prometheus.
type PrometheusMetrics struct {
	reg       prometheus.Registerer
	namespace string

	processed      *prometheus.CounterVec
	payloadInvalid prometheus.Counter
	ackFailures    prometheus.Counter
	claims         prometheus.Counter
	claimFailures  prometheus.Counter
	poolRunning    prometheus.Gauge
	poolQueued     prometheus.Gauge
}

var _ ConsumerMetrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates a Prometheus-backed collector.
//
// reg defaults to prometheus.DefaultRegisterer and namespace to "streammin".
// Every series is registered up front so /metrics lists them before the first message.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "streammin"
	}
	p := &PrometheusMetrics{reg: reg, namespace: namespace}
	p.register()
	return p
}

func (p *PrometheusMetrics) register() {
	p.processed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Messages handed to the handler, by outcome (success, error).",
	}, []string{"outcome"})
	p.payloadInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: "consumer",
		Name:      "payload_invalid_total",
		Help:      "Entries skipped because their payload could not be decoded.",
	})
	p.ackFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: "consumer",
		Name:      "ack_failures_total",
		Help:      "Acknowledgments that failed and were left for reclaim.",
	})
	p.claims = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: "consumer",
		Name:      "claims_total",
		Help:      "Stale entries claimed from other consumers.",
	})
	p.claimFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Subsystem: "consumer",
		Name:      "claim_failures_total",
		Help:      "Claim attempts that returned an error.",
	})
	p.poolRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Subsystem: "pool",
		Name:      "running",
		Help:      "Tasks currently executing in the consumer pool.",
	})
	p.poolQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Subsystem: "pool",
		Name:      "queued",
		Help:      "Tasks waiting for a pool slot.",
	})
	p.reg.MustRegister(
		p.processed,
		p.payloadInvalid,
		p.ackFailures,
		p.claims,
		p.claimFailures,
		p.poolRunning,
		p.poolQueued,
	)
	for _, outcome := range []string{OutcomeSuccess, OutcomeError} {
		p.processed.WithLabelValues(outcome)
	}
}

func (p *PrometheusMetrics) MessageProcessed(outcome string) {
	p.processed.WithLabelValues(outcome).Inc()
}

func (p *PrometheusMetrics) PayloadInvalid() {
	p.payloadInvalid.Inc()
}

func (p *PrometheusMetrics) AckFailed() {
	p.ackFailures.Inc()
}

func (p *PrometheusMetrics) MessageClaimed() {
	p.claims.Inc()
}

func (p *PrometheusMetrics) ClaimFailed() {
	p.claimFailures.Inc()
}

func (p *PrometheusMetrics) PoolState(running, queued int) {
	p.poolRunning.Set(float64(running))
	p.poolQueued.Set(float64(queued))
}
