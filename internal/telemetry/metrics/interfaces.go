// Package metrics is the engine's metrics provider abstraction: a small
// Counter/Gauge/Histogram/Timer surface with noop, Prometheus, and OTEL
// backends, so detector throughput and AMMAD internals can be observed
// without coupling detection logic to a specific metrics backend.
package metrics

import "context"

// Counter represents a monotonically increasing value.
type Counter interface {
	Inc(delta float64, labels ...string)
}

// Gauge represents a value that can go up or down.
type Gauge interface {
	Set(value float64, labels ...string)
	Add(delta float64, labels ...string)
}

// Histogram records observations into buckets and tracks count + sum.
type Histogram interface {
	Observe(value float64, labels ...string)
}

// Timer is a helper handle for measuring latency.
type Timer interface {
	ObserveDuration(labels ...string)
}

// Provider is the top-level metrics provider abstraction.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	NewTimer(h HistogramOpts) func() Timer
	Health(ctx context.Context) error
}

// CommonOpts is embedded into each metric option struct.
type CommonOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
	Labels    []string
}

type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }

type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

// Well-known metric names this engine emits. Centralized here so the
// analysis state, batch orchestrator, and stream orchestrator share the
// same label and name conventions; every var here has a call site in
// internal/analysis or internal/stream (see state.go's WithMetrics and
// stream/orchestrator.go's session lifecycle).
var (
	SamplesObserved      = CounterOpts{CommonOpts{Namespace: "wellflow", Subsystem: "detect", Name: "samples_observed_total", Help: "samples appended to a channel buffer", Labels: []string{"channel", "method"}}}
	Detections           = CounterOpts{CommonOpts{Namespace: "wellflow", Subsystem: "detect", Name: "detections_total", Help: "detector invocations by outcome", Labels: []string{"method", "decision"}}}
	DetectorFaults       = CounterOpts{CommonOpts{Namespace: "wellflow", Subsystem: "detect", Name: "faults_total", Help: "detector errors absorbed as false", Labels: []string{"channel", "method"}}}
	AMMADChannels        = GaugeOpts{CommonOpts{Namespace: "wellflow", Subsystem: "ammad", Name: "channel_state_count", Help: "channels with live AMMAD state"}}
	DetectorDuration     = HistogramOpts{CommonOpts: CommonOpts{Namespace: "wellflow", Subsystem: "detect", Name: "detector_duration_seconds", Help: "per-sample detector call latency", Labels: []string{"method"}}}
	BufferResizes        = CounterOpts{CommonOpts{Namespace: "wellflow", Subsystem: "detect", Name: "buffer_resize_total", Help: "ring buffer resizes triggered by a window size change"}}
	Reconfigurations     = CounterOpts{CommonOpts{Namespace: "wellflow", Subsystem: "analysis", Name: "reconfigurations_total", Help: "accepted Analysis State field mutations", Labels: []string{"field"}}}
	StreamSessionsActive = GaugeOpts{CommonOpts{Namespace: "wellflow", Subsystem: "stream", Name: "sessions_active", Help: "stream sessions currently running their emission loop"}}
)

// Noop implementations -------------------------------------------------------

type noopProvider struct{}
type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}
type noopTimer struct{}

// NewNoopProvider returns a provider that discards everything; the default
// when no telemetry backend is configured.
func NewNoopProvider() Provider { return &noopProvider{} }

func (p *noopProvider) NewCounter(opts CounterOpts) Counter       { return noopCounter{} }
func (p *noopProvider) NewGauge(opts GaugeOpts) Gauge             { return noopGauge{} }
func (p *noopProvider) NewHistogram(opts HistogramOpts) Histogram { return noopHistogram{} }
func (p *noopProvider) NewTimer(h HistogramOpts) func() Timer {
	return func() Timer { return noopTimer{} }
}
func (p *noopProvider) Health(ctx context.Context) error { return nil }

func (noopCounter) Inc(delta float64, labels ...string)       {}
func (noopGauge) Set(value float64, labels ...string)         {}
func (noopGauge) Add(delta float64, labels ...string)         {}
func (noopHistogram) Observe(value float64, labels ...string) {}
func (noopTimer) ObserveDuration(labels ...string)             {}
