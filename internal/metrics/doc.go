// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package metrics provides Prometheus instrumentation for the supervisor daemon.

# Overview

The package exposes metrics for the four subsystems that do real work on a
node:

  - Supervisor: child restarts, exit-code buckets, backoff sleep durations,
    continuous-failure counters, observed child uptime.
  - Service Orchestrator: per-verb fan-out counters and durations, node
    lifecycle state, node lock wait time and contention.
  - Versioned Installer: create/activate/rollback/delete/gc operation counts
    and durations, link store file/byte/GC gauges, installed-version counts
    per branch.
  - Status Aggregator: per-service state gauges, named data points, ICMP
    peer check outcomes.

# Metrics Endpoint

Metrics are exposed wherever the embedding binary mounts
promhttp.Handler(); this package only registers collectors against the
default registry via promauto.

# Usage

	import "github.com/tomtom215/fleetsupervisor/internal/metrics"

	metrics.ObserveChildExit("plexmediaserver", 0, uptime)
	metrics.BackoffSleepSeconds.WithLabelValues("plexmediaserver").Observe(d.Seconds())

# See Also

  - internal/supervisor: primary consumer of the Supervisor metrics
  - internal/orchestrator: primary consumer of the Orchestrator metrics
  - internal/installer: primary consumer of the Installer metrics
  - internal/status: primary consumer of the Status Aggregator metrics
*/
package metrics
