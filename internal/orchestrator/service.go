// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package orchestrator

import "context"

// Classification is a configured service's SERVICE= flag.
type Classification int

const (
	// ClassificationOn means the service always runs on this node.
	ClassificationOn Classification = iota
	// ClassificationOff means the service never runs on this node.
	ClassificationOff
	// ClassificationDefault means host-list matching decides.
	ClassificationDefault
)

func (c Classification) String() string {
	switch c {
	case ClassificationOn:
		return "on"
	case ClassificationOff:
		return "off"
	case ClassificationDefault:
		return "default"
	default:
		return "unknown"
	}
}

// VerbState is the outcome of one per-service verb invocation.
type VerbState int

const (
	VerbOK VerbState = iota
	VerbWarn
	VerbError
	VerbTimeout
	VerbUnknown
)

func (s VerbState) String() string {
	switch s {
	case VerbOK:
		return "ok"
	case VerbWarn:
		return "warn"
	case VerbError:
		return "error"
	case VerbTimeout:
		return "timeout"
	case VerbUnknown:
		return "unknown"
	default:
		return "unset"
	}
}

// ServiceConfig describes one service's placement on this node.
type ServiceConfig struct {
	Name           string
	Classification Classification
	// Hosts lists hostnames/IPs this service is declared for when
	// Classification is ClassificationDefault.
	Hosts []string
	// PidfilePath is where the service's Supervisor records its liveness.
	PidfilePath string
}

// Service is the capability surface every orchestrated unit implements.
// A service carries no persistent state of its own; it exists for the
// Orchestrator's process lifetime.
type Service interface {
	// Start launches the service (typically by adding its *supervisor.Supervisor
	// to the tree and/or requesting its first fork).
	Start(ctx context.Context) error
	// Stop requests a cooperative shutdown.
	Stop(ctx context.Context) error
	// Status runs this service's probe and reports its current state.
	Status(ctx context.Context) (VerbState, error)
	// Reload asks a running service to pick up new code/config without a
	// full stop/start cycle.
	Reload(ctx context.Context) error
	// Repair attempts to fix a service found in a bad state (e.g. stale
	// lock cleanup) without a full restart.
	Repair(ctx context.Context) error
	// DecommissionPrecheck reports whether this service is safe to
	// decommission (e.g. no unflushed local state).
	DecommissionPrecheck(ctx context.Context) error
	// Decommission performs the service's teardown as part of node
	// decommissioning.
	Decommission(ctx context.Context) error
	// RotateLogs asks the service to reopen its log files.
	RotateLogs(ctx context.Context) error
}

type registeredService struct {
	config ServiceConfig
	impl   Service
}
