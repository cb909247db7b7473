// Package metrics exposes per-cycle Prometheus metrics for the relay loop.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
)

const namespace = "newsrelay"

// Recorder turns cycle reports into counters and gauges on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	cycles     *prometheus.CounterVec
	itemsNew   prometheus.Counter
	pushes     *prometheus.CounterVec
	sources    *prometheus.CounterVec
	bufferSize prometheus.Gauge
	seenSize   prometheus.Gauge
	lastCycle  prometheus.Gauge
}

var _ ports.CycleObserver = (*Recorder)(nil)

// NewRecorder registers all collectors plus Go runtime collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Dispatch cycles by outcome",
		}, []string{"result"}),
		itemsNew: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_new_total",
			Help:      "Items that passed dedup and filtering",
		}),
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Chat deliveries by status",
		}, []string{"status"}),
		sources: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_total",
			Help:      "Source fetches by status",
		}, []string{"status"}),
		bufferSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "digest_buffer_size",
			Help:      "Items held for the overnight digest",
		}),
		seenSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_size",
			Help:      "Fingerprints retained in the dedup window",
		}),
		lastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time of the last committed cycle",
		}),
	}
}

// ObserveCycle records one finished cycle.
func (r *Recorder) ObserveCycle(report domain.CycleReport, err error) {
	r.cycles.WithLabelValues(cycleResult(report, err)).Inc()
	if err != nil || report.Skipped {
		return
	}

	r.itemsNew.Add(float64(report.New))
	r.pushes.WithLabelValues("ok").Add(float64(report.PushedOK))
	r.pushes.WithLabelValues("fail").Add(float64(report.PushedFail))
	r.sources.WithLabelValues("ok").Add(float64(report.SourcesOK))
	r.sources.WithLabelValues("fail").Add(float64(report.SourcesFail))
	r.bufferSize.Set(float64(report.BufferedTotal))
	r.seenSize.Set(float64(report.SeenSize))
	if !report.UTC.IsZero() {
		r.lastCycle.Set(float64(report.UTC.Unix()))
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func cycleResult(report domain.CycleReport, err error) string {
	switch {
	case errors.Is(err, domain.ErrStateConflict):
		return "conflict"
	case err != nil:
		return "error"
	case report.Skipped:
		return "skipped"
	case report.Bootstrap:
		return "bootstrap"
	default:
		return "ok"
	}
}
