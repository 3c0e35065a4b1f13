// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package daemonservices

import (
	"context"
	"log/slog"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/controlfile"
	"github.com/tomtom215/fleetsupervisor/internal/orchestrator"
)

// ReconcileTickerService polls RunDir for a pending fleetctl request
// (internal/controlfile) and actions it against the live Orchestrator,
// publishing a result fleetctl is waiting on. This is the daemon side of
// the filesystem-based handoff described in internal/controlfile's doc
// comment: the only way a one-shot CLI invocation reaches the
// continuously-running supervisor tree without RPC.
type ReconcileTickerService struct {
	Orchestrator *orchestrator.Orchestrator
	RunDir       string
	Interval     time.Duration
	Logger       *slog.Logger
}

// NewReconcileTickerService constructs a ticker; a zero interval defaults
// to 500ms, fast enough that fleetctl's --wait doesn't spend most of its
// budget on polling latency.
func NewReconcileTickerService(o *orchestrator.Orchestrator, runDir string, interval time.Duration, logger *slog.Logger) *ReconcileTickerService {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileTickerService{Orchestrator: o, RunDir: runDir, Interval: interval, Logger: logger}
}

// Serve implements suture.Service.
func (r *ReconcileTickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *ReconcileTickerService) tick(ctx context.Context) {
	req, ok, err := controlfile.Take(r.RunDir)
	if err != nil {
		r.Logger.Warn("reconcile ticker: reading request failed", "error", err)
		return
	}
	if !ok {
		return
	}

	res := controlfile.Result{ID: req.ID, OK: true}
	if err := r.apply(ctx, req); err != nil {
		res.OK = false
		res.Message = err.Error()
	}
	if err := controlfile.PublishResult(r.RunDir, res); err != nil {
		r.Logger.Warn("reconcile ticker: publishing result failed", "error", err)
	}
}

func (r *ReconcileTickerService) apply(ctx context.Context, req controlfile.Request) error {
	switch req.Verb {
	case "start":
		return r.Orchestrator.Start(ctx, 0)
	case "stop":
		return r.Orchestrator.Stop(ctx, req.Hard)
	case "restart":
		return r.Orchestrator.Restart(ctx, 0)
	case "reload":
		return r.Orchestrator.Reload(ctx)
	case "repair":
		return r.Orchestrator.Repair(ctx)
	case "rotate-logs":
		return r.Orchestrator.RotateLogs(ctx)
	case "mode":
		return r.Orchestrator.SetMaintenanceMode(ctx, req.Arg == "maintenance")
	default:
		return errUnknownVerb(req.Verb)
	}
}

type unknownVerbError string

func (e unknownVerbError) Error() string { return "unknown service verb: " + string(e) }

func errUnknownVerb(verb string) error { return unknownVerbError(verb) }

// String implements fmt.Stringer.
func (r *ReconcileTickerService) String() string { return "reconcile-ticker" }
