// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package sigmask implements the "finish the current critical section
// before honoring Ctrl-C" pattern used around version deletion (spec.md
// §4.3) and parallel verb fan-out (spec.md §4.7, §9): SIGINT arriving
// mid-section is caught and held rather than delivered, and re-raised
// against this same process once the section completes so that a
// caller further up (a shell, a parent supervisor) still observes it.
package sigmask

import (
	"os"
	"os/signal"
	"syscall"
)

// Ignore installs a SIGINT handler that only records the signal instead
// of acting on it. The returned restore function uninstalls the handler
// and reports whether SIGINT arrived while it was active; callers should
// call it via defer and re-raise with Reraise if it returns true.
func Ignore() (restore func() (caught bool)) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	return func() bool {
		signal.Stop(ch)
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

// Reraise sends SIGINT to the current process, for redelivery once a
// section masked by Ignore has completed.
func Reraise() {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return
	}
	_ = p.Signal(syscall.SIGINT)
}
