/*
Package metrics provides Prometheus metrics and health reporting for the
burrow agent.

All metrics are registered with the default Prometheus registry at package
init and served by Handler on /metrics.

# Metrics

Volumes:

	burrow_volumes_total{placement}                    gauge      local, remote, unattached
	burrow_volume_operations_total{operation,status}   counter    create, attach, device_path
	burrow_volume_operation_duration_seconds{operation} histogram

Manifestations:

	burrow_manifestations_discovered                   gauge
	burrow_manifestations_desired                      gauge

State changes and convergence:

	burrow_state_changes_total{type,status}            counter
	burrow_state_change_duration_seconds{type}         histogram
	burrow_reconciliation_duration_seconds             histogram
	burrow_reconciliation_cycles_total                 counter
	burrow_reconciliation_errors_total                 counter

Status labels are "success" or "error", see Status.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.VolumeOperationDuration, "create")

# Collector

Collector lists the backend's volumes on an interval, keeps
burrow_volumes_total current and reports the "backend" health component.

# Health

Components is the agent's record of how each part last fared. The collector
reports the backend, the agent reports the journal, API and every
reconciliation cycle. Each report also sets burrow_component_healthy.

	components := metrics.NewComponents()
	components.Report(metrics.ComponentReconciler, result.Err)

The HTTP API in pkg/api reads it to decide readiness.
*/
package metrics
