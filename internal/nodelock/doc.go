// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package nodelock implements the coarse node lock guarding service
start/stop/restart/reload/repair/rotate-logs/mode operations. New takes
any lock name; in this tree only the orchestrator's node lock is built
from it.

Acquisition polls at a configurable interval (default 500ms, matching the
source) until the deadline in the caller's context.Context expires. A lock
whose recorded owner pid is no longer live is self-healing: the next
acquirer simply overwrites it rather than erroring.

# See Also

  - internal/orchestrator: acquires the node lock in Start, Stop, Reload,
    Repair, RotateLogs and SetMaintenanceMode (Restart through Stop and Start)
  - internal/pidfile: the on-disk mechanism a Lock is built from
*/
package nodelock
