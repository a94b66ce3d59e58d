package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"EcoCart/internal/domain"
	"EcoCart/internal/ports"
)

// Recorder exports pipeline and gateway metrics from a private registry.
type Recorder struct {
	registry        *prometheus.Registry
	runs            *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	alternatives    prometheus.Histogram
	runDuration     prometheus.Histogram
}

var (
	_ ports.GatewayObserver = (*Recorder)(nil)
	_ ports.RunObserver     = (*Recorder)(nil)
)

// NewRecorder registers all collectors. Go runtime and process collectors are included.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecocart_runs_total",
			Help: "Finished pipeline runs by status and failure reason.",
		}, []string{"status", "reason"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ecocart_gateway_requests_total",
			Help: "Remote service calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ecocart_gateway_request_duration_seconds",
			Help:    "Latency of remote service calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"operation"}),
		alternatives: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecocart_alternatives_gathered",
			Help:    "Alternatives attached to completed runs.",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ecocart_run_duration_seconds",
			Help:    "Wall time of finished pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
		}),
	}

	r.registry.MustRegister(
		r.runs,
		r.gatewayRequests,
		r.gatewayDuration,
		r.alternatives,
		r.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveGatewayCall counts one remote call.
func (r *Recorder) ObserveGatewayCall(operation string, elapsed time.Duration, err error) {
	r.gatewayRequests.WithLabelValues(operation, domain.ErrorKind(err)).Inc()
	r.gatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveRun counts one finished run.
func (r *Recorder) ObserveRun(result domain.PipelineResult) {
	reason := string(result.Reason)
	if reason == "" {
		reason = "none"
	}
	r.runs.WithLabelValues(string(result.Status), reason).Inc()

	if result.Status == domain.StatusCompleted {
		r.alternatives.Observe(float64(len(result.Alternatives)))
	}
	if !result.StartedAt.IsZero() && result.FinishedAt.After(result.StartedAt) {
		r.runDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
