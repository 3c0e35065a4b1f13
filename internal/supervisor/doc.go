// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package supervisor runs and restarts supervised child processes, and hosts
them inside a suture v4 supervision tree.

There are two distinct levels of supervision in this package, and it is
easy to confuse them:

  - Supervisor (supervisor.go) is the per-child-process watchdog described
    in the node supervisor design: it forks exactly one command, writes its
    pidfile, waits for it to exit, and relaunches it with a backoff curve
    on unexpected exit. One Supervisor exists per supervised service.
  - SupervisorTree (tree.go) is the Go-process-level suture tree that hosts
    every *Supervisor (under its "services" layer) alongside ambient daemon
    machinery like the status aggregator ticker (under "internal"). A panic
    or unexpected return from a *Supervisor's Serve is caught and restarted
    here, as a belt-and-braces layer on top of the backoff loop Supervisor
    already implements.

# Why an event channel instead of OS signals

The original design supervised exactly one child process per OS process,
so its control surface was real UNIX signals (TERM to stop, HUP/INT/USR1/
USR2/QUIT to forward, WINCH to rotate logs). This daemon runs every
supervised service inside one Go process, so a signal delivered to the
daemon cannot be routed to "the supervisor for service X" — there is no
such addressable OS entity. Supervisor exposes the same three operations as
method calls instead: RequestStop, ForwardSignal, and RotateLogs. Whatever
receives the daemon's own OS signals (cmd/fleetsupervisord) is responsible
for mapping them onto the right Supervisor's event channel.

# Main loop

Serve runs until the context is canceled or RequestStop is called. Each
iteration: verify the pidfile isn't owned by another live supervisor (a
residual write from a crashed daemon instance), run the free-space guard
if Config.CheckFreeSpace is set (no checker is installed by default, and
internal/svcadapter sets none), fork if no child is running, then wait
for either the child to exit or an event to arrive. An unexpected exit
computes a backoff sleep from the configured curve (default minimum 5s,
maximum 30s, 60s jitter) before reforking; a requested stop forwards a
cooperative signal (or a custom stop function) to the child and waits for
it to actually exit before returning.

# See Also

  - internal/launcher: builds the *exec.Cmd a Supervisor forks
  - internal/redirector: where a Supervisor's child's stdout/stderr go
  - internal/pidfile: the on-disk record a Supervisor owns
  - internal/svcadapter: adds/removes *Supervisor instances from the tree
  - github.com/thejerf/suture/v4: underlying supervision-tree library
*/
package supervisor
