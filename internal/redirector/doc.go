// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package redirector pipes a supervised child's stdout and stderr into
rotatable log files.

Each stream owns an os.Pipe and a worker goroutine that polls the read end
with a bounded deadline (ReadTimeout), splits whatever it reads into
lines, carries any unterminated remainder into the next read, and appends
complete lines to the log file. Before each write it compares the log
path's on-disk inode against the currently open handle's; a mismatch means
something external rotated the file, so the handle is reopened. If the log
directory itself was removed, it's recreated.

Rotate forces a reopen on the next write, which is what a Supervisor's
WINCH handler calls to implement "rotate logs" without restarting the
child.

# See Also

  - internal/launcher: wires a Redirector's write ends as exec.Cmd.Stdout/Stderr
  - internal/supervisor: calls Rotate on WINCH
*/
package redirector
