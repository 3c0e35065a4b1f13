// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package pidfile implements the atomic, liveness-checked pidfile record used
by the Supervisor and read by the Service Orchestrator to decide whether a
service is running on this node.

# Format

The first line holds the owning pid, or is blank. Subsequent lines are
sorted "key=value" extras. Mandatory extras while a child is live:
daemon_start_time, child_pid, child_start_time, start_count; optional:
prior_child_start_time, status_message.

# Atomicity

Every write goes to a temp file beside the target and is renamed into
place, so a reader never observes a half-written pid line — it sees either
the entirely-prior contents or the entirely-new ones.

# Liveness

Store.Liveness defaults to a kill(pid, 0) probe (DefaultLiveness) and is
injectable for tests that don't want to depend on real process state.

# See Also

  - internal/supervisor: writes child_pid/start_count/child_start_time each cycle
  - internal/orchestrator: reads pidfiles to compute the Running set
*/
package pidfile
