package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Volume metrics
	VolumesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_volumes_total",
			Help: "Number of backend volumes seen at the last discovery, by placement (local, remote, unattached)",
		},
		[]string{"placement"},
	)

	VolumeOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_volume_operations_total",
			Help: "Total number of backend volume operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	VolumeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_volume_operation_duration_seconds",
			Help:    "Backend volume operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Manifestation metrics
	ManifestationsDiscovered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_manifestations_discovered",
			Help: "Number of manifestations discovered on this host",
		},
	)

	ManifestationsDesired = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_manifestations_desired",
			Help: "Number of manifestations the desired configuration places on this host",
		},
	)

	// State change metrics
	StateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_state_changes_total",
			Help: "Total number of state changes run by type and status",
		},
		[]string{"type", "status"},
	)

	StateChangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_state_change_duration_seconds",
			Help:    "State change duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_reconciliation_duration_seconds",
			Help:    "Time taken for a convergence cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_reconciliation_cycles_total",
			Help: "Total number of convergence cycles",
		},
	)

	ReconciliationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_reconciliation_errors_total",
			Help: "Total number of convergence cycles that ended with an error",
		},
	)

	// Agent metrics
	ComponentHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_component_healthy",
			Help: "1 if the component's last report was healthy, 0 otherwise",
		},
		[]string{"component"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_events_dropped_total",
			Help: "Events discarded because a subscriber's buffer was full",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(VolumesTotal)
	prometheus.MustRegister(VolumeOperationsTotal)
	prometheus.MustRegister(VolumeOperationDuration)
	prometheus.MustRegister(ManifestationsDiscovered)
	prometheus.MustRegister(ManifestationsDesired)
	prometheus.MustRegister(StateChangesTotal)
	prometheus.MustRegister(StateChangeDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationErrorsTotal)
	prometheus.MustRegister(ComponentHealthy)
	prometheus.MustRegister(EventsDroppedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status returns the status label for an operation result
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
