// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package status builds per-service status structs and merges them into a
// node-wide roll-up, carrying a human message and typed data points for
// external monitoring (nagios, collectd, Prometheus).
package status

// State is one node or service's health state. Ordinal values are used
// directly as the status_service_state gauge exported by internal/metrics,
// so existing values must not be renumbered.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunningOK
	StateStopping
	StateWarn
	StateError
	StateUnknown
	StateDecommissioned
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunningOK:
		return "RUNNING_OK"
	case StateStopping:
		return "STOPPING"
	case StateWarn:
		return "WARN"
	case StateError:
		return "ERROR"
	case StateUnknown:
		return "UNKNOWN"
	case StateDecommissioned:
		return "DECOMMISSIONED"
	default:
		return "UNKNOWN"
	}
}

// severityRank orders states for merging multiple service results into one
// node-wide state, most important first: Decommissioned > Unknown > Error >
// Stopped > Starting|Stopping > Warn > OK.
func severityRank(s State) int {
	switch s {
	case StateDecommissioned:
		return 7
	case StateUnknown:
		return 6
	case StateError:
		return 5
	case StateStopped:
		return 4
	case StateStarting, StateStopping:
		return 3
	case StateWarn:
		return 2
	case StateRunningOK:
		return 1
	default:
		return 0
	}
}

// MergeState combines two states, keeping whichever is more severe. A
// STARTING or STOPPING incoming state always wins, even over ERROR, since
// a service mid-transition masks a stale problem reading — matching the
// source's explicit precedence for those two states.
func MergeState(current, incoming State) State {
	if incoming == StateStarting || incoming == StateStopping {
		return incoming
	}
	if severityRank(incoming) > severityRank(current) {
		return incoming
	}
	return current
}

// NagiosExitCode maps a state onto the nagios exit-code convention from
// spec.md §6: DECOMMISSIONED and ERROR -> 2, UNKNOWN -> 3, RUNNING_OK -> 0,
// everything else (WARN, STARTING, STOPPING, STOPPED) -> 1.
func (s State) NagiosExitCode() int {
	switch s {
	case StateDecommissioned, StateError:
		return 2
	case StateUnknown:
		return 3
	case StateRunningOK:
		return 0
	default:
		return 1
	}
}

// ExitCode is the plain process exit code convention used by the default,
// silent and errors-only formats: 0 for OK and WARN, 1 otherwise.
func (s State) ExitCode() int {
	if s == StateRunningOK || s == StateWarn {
		return 0
	}
	return 1
}
