// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package orchestrator is the node-level controller: it computes the
Enabled, Running, Running-but-not-enabled, and Enabled-but-not-running
service sets and fans start/stop/restart/reload/repair/status/decommission
operations across them through a bounded worker pool with per-call
timeouts.

# Sets

A service is Enabled on this node when its classification is "on", or
"default" with a host list intersecting this node's addresses (or no
service anywhere declares a non-loopback host — single-node mode).
"off" is never enabled. A service is Running when its pidfile names a
live pid.

# Fan-out

Each verb call runs under its own timeout derived from Config.PerCallTimeout;
expiry yields a VerbTimeout result rather than canceling the call (the work
continues to its own completion and the late result is simply discarded, per
spec.md §5). Concurrency is bounded by a golang.org/x/sync/semaphore.Weighted
sized to the number of services in the batch (or Config.MaxConcurrency).
One service's failure is captured in its own VerbResult and never cancels
its siblings.

Status probes additionally run behind a per-service gobreaker circuit
breaker: after three consecutive probe failures the breaker opens and
further status calls for that service report VerbUnknown immediately
rather than re-invoking (and potentially hanging on) a wedged probe,
until the breaker's cooldown elapses.

# Hard kill

HardKill (spec.md §4.7.1) reads every supervisor pidfile, expands each
recorded pid into its full descendant set via the OS process table
(github.com/shirou/gopsutil/v4/process), flattens the union, SIGTERMs it,
waits up to four seconds, then SIGKILLs survivors.

# See Also

  - internal/nodelock: the node lock acquired by Start/Stop/Restart/Reload/Repair
  - internal/supervisor: typically what a Service.Start adds to the tree
  - internal/status: merges Status fan-out results into a node roll-up
*/
package orchestrator
