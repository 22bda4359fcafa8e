package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Launch failure reasons used as the "reason" label.
const (
	ReasonConfig      = "config"
	ReasonNoProfile   = "no_profile"
	ReasonNotFound    = "profile_not_found"
	ReasonStartFailed = "start_failed"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	overlayLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "launches_total",
			Help:      "Number of successful overlay launches per profile.",
		}, []string{"profile"},
	)
	overlayLaunchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "launch_failures_total",
			Help:      "Number of launches that did not start an overlay.",
		}, []string{"reason"},
	)
	overlayStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "stops_total",
			Help:      "Number of overlays stopped because their entity stopped.",
		},
	)
	overlayExits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "exits_total",
			Help:      "Number of overlays that exited on their own.",
		},
	)
	overlayRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "running",
			Help:      "Overlays currently mapped to an entity.",
		},
	)
	overlayStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "stop_duration_seconds",
			Help:      "Time from stop request until the overlay was gone.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	overlayMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the overlay process per entity.",
		}, []string{"entity"},
	)
	overlayCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "glassd",
			Subsystem: "overlay",
			Name:      "cpu_percent",
			Help:      "CPU usage of the overlay process per entity.",
		}, []string{"entity"},
	)

	tagsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "glassd",
			Subsystem: "profiles",
			Name:      "tags_added_total",
			Help:      "Profile tags created by reconciliation.",
		},
	)
	tagsRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "glassd",
			Subsystem: "profiles",
			Name:      "tags_removed_total",
			Help:      "Profile tags deleted by reconciliation.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		overlayLaunches, overlayLaunchFailures, overlayStops, overlayExits,
		overlayRunning, overlayStopDuration, overlayMemory, overlayCPU,
		tagsAdded, tagsRemoved,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(profile string) {
	if regOK.Load() {
		overlayLaunches.WithLabelValues(profile).Inc()
	}
}
func IncLaunchFailure(reason string) {
	if regOK.Load() {
		overlayLaunchFailures.WithLabelValues(reason).Inc()
	}
}
func IncStop() {
	if regOK.Load() {
		overlayStops.Inc()
	}
}
func IncExit() {
	if regOK.Load() {
		overlayExits.Inc()
	}
}
func SetRunning(n int) {
	if regOK.Load() {
		overlayRunning.Set(float64(n))
	}
}
func ObserveStopDuration(seconds float64) {
	if regOK.Load() {
		overlayStopDuration.Observe(seconds)
	}
}

// SetResources publishes a resource sample for the overlay of entity.
func SetResources(entity string, rss uint64, cpuPercent float64) {
	if regOK.Load() {
		overlayMemory.WithLabelValues(entity).Set(float64(rss))
		overlayCPU.WithLabelValues(entity).Set(cpuPercent)
	}
}

// ForgetEntity drops per-entity series once its overlay is gone.
func ForgetEntity(entity string) {
	if regOK.Load() {
		overlayMemory.DeleteLabelValues(entity)
		overlayCPU.DeleteLabelValues(entity)
	}
}

func AddTagChanges(added, removed int) {
	if regOK.Load() {
		tagsAdded.Add(float64(added))
		tagsRemoved.Add(float64(removed))
	}
}
