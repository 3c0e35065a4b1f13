// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package metrics provides Prometheus instrumentation for the supervisor
// daemon: child process restarts and backoff, service orchestrator fan-out,
// the versioned installer, and the status aggregator's own data points.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Supervisor (§4.6) metrics.
	ChildRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_child_restarts_total",
			Help: "Total number of times a supervised child was relaunched after an unexpected exit",
		},
		[]string{"service"},
	)

	ChildExitCode = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_child_exit_total",
			Help: "Total number of child exits observed, labeled by exit code bucket",
		},
		[]string{"service", "exit_code"},
	)

	BackoffSleepSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supervisor_backoff_sleep_seconds",
			Help:    "Duration of backoff sleeps before relaunching a child",
			Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 90},
		},
		[]string{"service"},
	)

	ContinuousFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supervisor_continuous_failures",
			Help: "Current continuous-restart counter per service (resets when a child survives MAX_BACKOFF)",
		},
		[]string{"service"},
	)

	ChildUptimeSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supervisor_child_uptime_seconds",
			Help:    "Observed lifetime of a supervised child between launch and exit",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600, 86400},
		},
		[]string{"service"},
	)

	// Service Orchestrator (§4.7) metrics.
	OrchestratorOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_operations_total",
			Help: "Total number of orchestrator verb invocations per service",
		},
		[]string{"verb", "service", "result"}, // result: ok, warn, error, unknown, timeout
	)

	OrchestratorOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_operation_duration_seconds",
			Help:    "Duration of a single per-service verb call within a fan-out",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb", "service"},
	)

	OrchestratorFanOutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_fanout_duration_seconds",
			Help:    "Wall-clock duration of a full parallel fan-out across services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	NodeState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_node_state",
			Help: "Current node lifecycle state (0=STOPPED,1=STARTING,2=RUNNING_OK,3=STOPPING)",
		},
	)

	NodeLockWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_node_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the node lock",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	NodeLockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_node_lock_contention_total",
			Help: "Total number of times acquiring the node lock failed due to contention",
		},
	)

	// Versioned Installer (§4.3) metrics.
	InstallerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "installer_operations_total",
			Help: "Total number of installer operations",
		},
		[]string{"operation", "result"}, // operation: create,activate,rollback,delete,gc
	)

	InstallerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "installer_operation_duration_seconds",
			Help:    "Duration of installer operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"operation"},
	)

	LinkStoreFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkstore_files",
			Help: "Current number of files in the content-addressed link store",
		},
	)

	LinkStoreBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkstore_bytes",
			Help: "Current total bytes occupied by the content-addressed link store",
		},
	)

	LinkStoreGCReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linkstore_gc_reclaimed_total",
			Help: "Total number of files reclaimed by link store garbage collection",
		},
	)

	VersionsInstalled = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "installer_versions_installed",
			Help: "Current number of installed versions per branch",
		},
		[]string{"branch"},
	)

	// Status Aggregator (§4.8) metrics.
	StatusState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "status_service_state",
			Help: "Current per-service status state (see status.State ordinal)",
		},
		[]string{"service"},
	)

	StatusDataPoint = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "status_data_point",
			Help: "Current value of a named status data point",
		},
		[]string{"service", "name", "unit"},
	)

	NetworkCheckSuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_network_check_total",
			Help: "Total number of ICMP peer checks, labeled by outcome",
		},
		[]string{"peer", "result"},
	)
)

// ObserveChildExit records a single supervised child exit: the restart
// counter, the uptime histogram, and an exit-code-bucketed counter.
func ObserveChildExit(service string, exitCode int, uptime time.Duration) {
	ChildRestarts.WithLabelValues(service).Inc()
	ChildUptimeSeconds.WithLabelValues(service).Observe(uptime.Seconds())
	bucket := "other"
	switch {
	case exitCode == 0:
		bucket = "0"
	case exitCode > 0 && exitCode < 128:
		bucket = "nonzero"
	case exitCode >= 128:
		bucket = "signal"
	}
	ChildExitCode.WithLabelValues(service, bucket).Inc()
}

// ObserveOrchestratorVerb records a single per-service verb call inside a
// fan-out, including its duration and result bucket.
func ObserveOrchestratorVerb(verb, service, result string, d time.Duration) {
	OrchestratorOperations.WithLabelValues(verb, service, result).Inc()
	OrchestratorOperationDuration.WithLabelValues(verb, service).Observe(d.Seconds())
}
