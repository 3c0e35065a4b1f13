// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package launcher starts a supervised child process in one of three modes:

  - ModeForegroundExec: sets up logs, drops privileges, optionally runs
    Init, then replaces the current process image via syscall.Exec. Never
    returns on success.
  - ModeForegroundChild: forks via os/exec; the parent waits and returns
    the child's exit code.
  - ModeDaemon: forks via os/exec in its own session; the parent waits
    (bounded, polling) for the pidfile to appear, then returns.

stdin is always /dev/null. stdout/stderr are routed through
internal/redirector unless LogBasePath is empty, in which case they are
suppressed. Failure to set up log directories is fatal; failure to set
OOM-score-adjustment or niceness is a warning (both best-effort, matching
spec.md §4.4).

# See Also

  - internal/redirector: stdout/stderr destination
  - internal/supervisor: the only expected caller, once per restart cycle
*/
package launcher
