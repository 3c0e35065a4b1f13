// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package status

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/metrics"
	"github.com/tomtom215/fleetsupervisor/internal/orchestrator"
)

// DetailedService is an optional capability a registered orchestrator.Service
// may also implement to supply a richer status message and data points than
// the plain VerbState the fan-out reports. This keeps the Service interface
// narrow (per the cyclic-reference design note) while still letting the
// aggregator build a full per-service Struct when one is available.
type DetailedService interface {
	StatusDetail(ctx context.Context) (message string, data map[string]DataPoint)
}

// CheckOptions mirrors the source's run_status_check flags.
type CheckOptions struct {
	DoStateChecks   bool
	DoServiceChecks bool
	// Services restricts which services are probed; empty means all.
	Services []string
	Timeout  time.Duration
}

// NodeReport is the merged result of one status check.
type NodeReport struct {
	State    State
	Message  string
	Services map[string]Struct

	RunningServices     []string
	EnabledServices      []string
	RunningUnexpectedly  []string
	MissingServices      []string
	TimeExceeded         bool
}

// Aggregator computes NodeReports from an Orchestrator's service sets and
// per-service status probes, per spec.md §4.8.
type Aggregator struct {
	Orchestrator *orchestrator.Orchestrator
}

// NewAggregator constructs an Aggregator over o.
func NewAggregator(o *orchestrator.Orchestrator) *Aggregator {
	return &Aggregator{Orchestrator: o}
}

// Check runs a status check according to opts.
func (a *Aggregator) Check(ctx context.Context, opts CheckOptions) NodeReport {
	running := a.Orchestrator.RunningSet()
	enabled := a.Orchestrator.EnabledSet()
	servicesAreRunning := len(running) > 0

	runningUnexpectedly := difference(running, enabled)
	if !servicesAreRunning {
		runningUnexpectedly = running
	}
	missing := difference(enabled, running)

	report := NodeReport{
		Services:            map[string]Struct{},
		RunningServices:     running,
		EnabledServices:     enabled,
		RunningUnexpectedly: runningUnexpectedly,
		MissingServices:     missing,
	}

	if opts.DoServiceChecks {
		names := opts.Services
		if len(names) == 0 {
			names = a.Orchestrator.AllNames()
		}

		checkCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			checkCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}

		start := time.Now()
		results := a.Orchestrator.Status(checkCtx, names)
		if opts.Timeout > 0 && time.Since(start) > opts.Timeout {
			report.TimeExceeded = true
		}
		for _, r := range results {
			report.Services[r.Service] = a.buildServiceStruct(checkCtx, r)
			metrics.StatusState.WithLabelValues(r.Service).Set(float64(mapVerbState(r.State)))
		}
	}

	if opts.DoStateChecks {
		a.applyStateChecks(&report, servicesAreRunning)
	}

	return report
}

func (a *Aggregator) buildServiceStruct(ctx context.Context, r orchestrator.VerbResult) Struct {
	st := mapVerbState(r.State)
	message := st.String()
	if r.Err != nil {
		message = r.Err.Error()
		if r.State == orchestrator.VerbTimeout {
			message = "status check timed out: " + message
		}
	}
	s := NewStruct(message, st)

	if impl, ok := a.Orchestrator.ServiceImpl(r.Service); ok {
		if detailed, ok := impl.(DetailedService); ok {
			detailMsg, data := detailed.StatusDetail(ctx)
			if detailMsg != "" {
				s.Message = detailMsg
			}
			for _, d := range data {
				s.AddDataPoint(d)
			}
		}
	}
	return s
}

func mapVerbState(v orchestrator.VerbState) State {
	switch v {
	case orchestrator.VerbOK:
		return StateRunningOK
	case orchestrator.VerbWarn:
		return StateWarn
	case orchestrator.VerbError:
		return StateError
	case orchestrator.VerbTimeout:
		// Per spec.md §7: "Timeout... Report a WARN-level status with a
		// timeout marker; operation continues."
		return StateWarn
	default:
		return StateUnknown
	}
}

// applyStateChecks folds per-service states and node-level conditions into
// report.State/Message, mirroring run_status_check's precedence:
// Decommissioned > Unknown > Error > Stopped > Starting|Stopping > Warn > OK.
func (a *Aggregator) applyStateChecks(report *NodeReport, servicesAreRunning bool) {
	overall := StateStopped
	if servicesAreRunning {
		overall = StateRunningOK
	}

	seen := map[State]bool{}
	var parts []string
	for _, name := range sortedKeys(report.Services) {
		svc := report.Services[name]
		seen[svc.State] = true
		if svc.State != StateRunningOK {
			parts = append(parts, name+": "+svc.FirstLine())
		}
	}

	switch {
	case a.Orchestrator.IsDecommissioned():
		overall = StateDecommissioned
	case seen[StateUnknown]:
		overall = StateUnknown
	case seen[StateError]:
		overall = StateError
	case seen[StateStopped]:
		overall = StateStopped
	case seen[StateStarting]:
		overall = StateStarting
	case seen[StateStopping]:
		overall = StateStopping
	case seen[StateWarn]:
		overall = StateWarn
	case seen[StateRunningOK]:
		overall = StateRunningOK
	}

	if servicesAreRunning && overall == StateStopped {
		// Every probed service reports stopped, but the node process is
		// itself running -- that's a real error, not a benign STOPPED.
		overall = StateError
	}

	if a.Orchestrator.IsInMaintenanceMode() {
		parts = append(parts, "in maintenance mode")
		if overall == StateRunningOK {
			overall = StateWarn
		}
	}

	if !servicesAreRunning {
		parts = append(parts, fmt.Sprintf("stopped; normally runs %s", strings.Join(report.EnabledServices, ", ")))
		if overall == StateRunningOK || overall == StateWarn {
			overall = StateStopped
		}
	}

	if len(report.RunningUnexpectedly) > 0 {
		parts = append(parts, "running unexpected services: "+strings.Join(report.RunningUnexpectedly, ", "))
		if overall == StateRunningOK {
			overall = StateWarn
		}
	}

	if servicesAreRunning && len(report.MissingServices) > 0 {
		parts = append(parts, "services missing: "+strings.Join(report.MissingServices, ", "))
		overall = StateError
	}

	report.State = overall
	report.Message = strings.Join(parts, "; ")
}

func sortedKeys(m map[string]Struct) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := inB[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
