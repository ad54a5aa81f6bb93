// Package metrics exposes gateway traffic and analysis outcomes to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/polysignal/internal/domain"
	"github.com/alanyoungcy/polysignal/internal/platform/polymarket"
)

// Recorder holds every polysignal metric on its own registry. It implements
// polymarket.Observer and service.AnalysisObserver.
type Recorder struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	CacheLookups    *prometheus.CounterVec
	Analyses        *prometheus.CounterVec
	AnalysisErrors  prometheus.Counter
	WalletFailures  prometheus.Counter
	QualifiedWallet prometheus.Histogram
}

// NewRecorder creates a Recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_upstream_requests_total",
				Help: "Upstream HTTP requests by API, host and status",
			},
			[]string{"api", "host", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "polysignal_upstream_request_duration_seconds",
				Help:    "Upstream HTTP request latency including retries",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"api"},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_cache_lookups_total",
				Help: "Response cache lookups by API and result",
			},
			[]string{"api", "result"},
		),

		Analyses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysignal_analyses_total",
				Help: "Completed market analyses by action and gate",
			},
			[]string{"action", "gate"},
		),

		AnalysisErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "polysignal_analysis_errors_total",
				Help: "Market analyses that ended with a fatal error",
			},
		),

		WalletFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "polysignal_wallet_failures_total",
				Help: "Wallets that could not be profiled",
			},
		),

		QualifiedWallet: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "polysignal_qualified_wallets",
				Help:    "Qualified wallets per scored market",
				Buckets: prometheus.LinearBuckets(0, 2, 11),
			},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.HTTPRequests,
		r.HTTPDuration,
		r.CacheLookups,
		r.Analyses,
		r.AnalysisErrors,
		r.WalletFailures,
		r.QualifiedWallet,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) ObserveRequest(api polymarket.API, host string, status int, d time.Duration) {
	r.HTTPRequests.WithLabelValues(string(api), host, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(string(api)).Observe(d.Seconds())
}

func (r *Recorder) ObserveCache(api polymarket.API, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(string(api), result).Inc()
}

func (r *Recorder) ObserveAnalysis(a domain.Analysis) {
	if a.Err != nil {
		r.AnalysisErrors.Inc()
		return
	}
	gate := string(a.Result.Diagnostics.Gate)
	if gate == "" {
		gate = "none"
	}
	r.Analyses.WithLabelValues(string(a.Result.Recommendation.Action), gate).Inc()
	r.WalletFailures.Add(float64(len(a.Failures)))
	if !a.Result.Diagnostics.Gate.IsMarketGate() {
		r.QualifiedWallet.Observe(float64(a.Result.Qualified))
	}
}
