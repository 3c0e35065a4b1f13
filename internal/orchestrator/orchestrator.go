// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package orchestrator computes the declared-vs-running service sets for
// this node and fans start/stop/restart/reload/repair/status/decommission
// operations across them with a bounded worker pool and per-call timeouts.
package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/metrics"
	"github.com/tomtom215/fleetsupervisor/internal/nodelock"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
)

// Config holds the Orchestrator's own tunables.
type Config struct {
	LockDir   string
	LockName  string // default "angel-service" per spec.md §5
	TmpDir    string
	DataDir   string
	StateFilePath string
	// DecommissionMarkerPath is the global "node is decommissioned" marker,
	// per spec.md §6's "/.<project>-decommissioned".
	DecommissionMarkerPath string

	// MaxConcurrency bounds the fan-out worker pool. Zero means "one
	// worker per service" (computed lazily at fan-out time), matching
	// spec.md §4.7's "worker pool sized to the number of services."
	MaxConcurrency int64

	// PerCallTimeout bounds a single verb invocation within a fan-out.
	PerCallTimeout time.Duration
}

// Orchestrator is the node-level controller described in spec.md §4.7.
type Orchestrator struct {
	cfg      Config
	services map[string]*registeredService
	mu       sync.RWMutex

	localAddrs map[string]struct{}

	lock     *nodelock.Lock
	pidfiles *pidfile.Store
	logger   *slog.Logger

	state   NodeState
	stateMu sync.Mutex

	breakers   map[string]*gobreaker.CircuitBreaker[VerbState]
	breakersMu sync.Mutex
}

// New constructs an Orchestrator. store defaults to a real pidfile.Store if nil.
func New(cfg Config, store *pidfile.Store, logger *slog.Logger) *Orchestrator {
	if cfg.LockName == "" {
		cfg.LockName = "angel-service"
	}
	if cfg.PerCallTimeout == 0 {
		cfg.PerCallTimeout = 30 * time.Second
	}
	if store == nil {
		store = pidfile.NewStore(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		services:   map[string]*registeredService{},
		localAddrs: localIPs(),
		lock:       nodelock.New(cfg.LockDir, cfg.LockName, store),
		pidfiles:   store,
		logger:     logger,
		breakers:   map[string]*gobreaker.CircuitBreaker[VerbState]{},
	}
}

// Register adds a service to the registry. It is not started; Start does that.
func (o *Orchestrator) Register(cfg ServiceConfig, impl Service) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.services[cfg.Name] = &registeredService{config: cfg, impl: impl}
}

func (o *Orchestrator) lookup(name string) (*registeredService, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rs, ok := o.services[name]
	return rs, ok
}

func (o *Orchestrator) isDecommissioned() bool {
	if o.cfg.DecommissionMarkerPath == "" {
		return false
	}
	_, err := os.Stat(o.cfg.DecommissionMarkerPath)
	return err == nil
}

// IsDecommissioned reports whether the global decommission marker is present.
func (o *Orchestrator) IsDecommissioned() bool { return o.isDecommissioned() }

// IsInMaintenanceMode reports whether DataDir/.maintenance_mode_lock exists.
func (o *Orchestrator) IsInMaintenanceMode() bool {
	if o.cfg.DataDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(o.cfg.DataDir, ".maintenance_mode_lock"))
	return err == nil
}

// SetMaintenanceMode creates or removes the maintenance-mode marker file
// under the node lock, serialising concurrent operators per the decision
// recorded in DESIGN.md: there is no broadcast call services must
// implement, so a service that cares about maintenance mode checks the
// marker itself and one that doesn't silently no-ops.
func (o *Orchestrator) SetMaintenanceMode(ctx context.Context, enabled bool) error {
	if o.cfg.DataDir == "" {
		return ferrors.New(ferrors.KindConfiguration, "orchestrator.maintenance_mode", "no data dir configured")
	}
	if err := o.lock.Acquire(ctx); err != nil {
		return err
	}
	defer o.lock.Release() //nolint:errcheck

	marker := filepath.Join(o.cfg.DataDir, ".maintenance_mode_lock")
	if enabled {
		f, err := os.OpenFile(marker, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return ferrors.Wrap(ferrors.KindFilesystem, "orchestrator.maintenance_mode", "creating marker", err)
		}
		return f.Close()
	}
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		return ferrors.Wrap(ferrors.KindFilesystem, "orchestrator.maintenance_mode", "removing marker", err)
	}
	return nil
}

// ServiceImpl returns the registered Service implementation for name, for
// callers (such as the status aggregator) that need capabilities beyond the
// VerbResult fan-out, e.g. an optional richer status detail.
func (o *Orchestrator) ServiceImpl(name string) (Service, bool) {
	rs, ok := o.lookup(name)
	if !ok {
		return nil, false
	}
	return rs.impl, true
}

// AllNames returns the sorted names of every registered service.
func (o *Orchestrator) AllNames() []string { return o.allNames() }

// Start brings up every Enabled-but-not-running service. If deadline > 0
// it additionally polls until every enabled service reports OK or the
// deadline elapses.
func (o *Orchestrator) Start(ctx context.Context, deadline time.Duration) error {
	if o.isDecommissioned() {
		return ferrors.ErrDecommissioned
	}
	if err := o.lock.Acquire(ctx); err != nil {
		return err
	}
	defer o.lock.Release() //nolint:errcheck

	o.setState(NodeStarting)
	missing := o.EnabledNotRunning()
	results := o.fanOut(ctx, "start", missing, func(c context.Context, rs *registeredService) error {
		return rs.impl.Start(c)
	})
	o.setState(NodeRunningOK)

	if deadline > 0 {
		if err := o.waitForOkayStatus(ctx, deadline); err != nil {
			return err
		}
	}
	return firstHardError(results)
}

// Stop brings down every Running service. If hard is set, HardKill runs
// first as a brute-force sweep before the cooperative stop fan-out.
func (o *Orchestrator) Stop(ctx context.Context, hard bool) error {
	if err := o.lock.Acquire(ctx); err != nil {
		return err
	}
	defer o.lock.Release() //nolint:errcheck

	o.setState(NodeStopping)
	if hard {
		if err := o.HardKill(ctx); err != nil {
			o.logger.Warn("hard kill encountered errors", "error", err)
		}
	}

	running := o.RunningSet()
	results := o.fanOut(ctx, "stop", running, func(c context.Context, rs *registeredService) error {
		return rs.impl.Stop(c)
	})

	o.setState(NodeStopped)
	o.clearTmpDir()
	return firstHardError(results)
}

// Restart stops then starts.
func (o *Orchestrator) Restart(ctx context.Context, deadline time.Duration) error {
	if err := o.Stop(ctx, false); err != nil {
		return err
	}
	return o.Start(ctx, deadline)
}

// Reload starts missing services, stops unexpected ones, then invokes
// Reload serially (sorted order) on the remaining running set.
func (o *Orchestrator) Reload(ctx context.Context) error {
	if err := o.lock.Acquire(ctx); err != nil {
		return err
	}
	defer o.lock.Release() //nolint:errcheck

	missing := o.EnabledNotRunning()
	o.fanOut(ctx, "start", missing, func(c context.Context, rs *registeredService) error {
		return rs.impl.Start(c)
	})

	unexpected := o.RunningNotEnabled()
	o.fanOut(ctx, "stop", unexpected, func(c context.Context, rs *registeredService) error {
		return rs.impl.Stop(c)
	})

	remaining := o.RunningSet()
	var firstErr error
	for _, name := range remaining {
		rs, ok := o.lookup(name)
		if !ok {
			continue
		}
		res := o.callVerb(ctx, "reload", rs, func(c context.Context, rs *registeredService) error {
			return rs.impl.Reload(c)
		})
		if res.State == VerbError && firstErr == nil {
			firstErr = res.Err
		}
	}
	return firstErr
}

// Repair stops unexpected services, starts missing ones, then invokes
// Repair on the remaining running set.
func (o *Orchestrator) Repair(ctx context.Context) error {
	if err := o.lock.Acquire(ctx); err != nil {
		return err
	}
	defer o.lock.Release() //nolint:errcheck

	unexpected := o.RunningNotEnabled()
	o.fanOut(ctx, "stop", unexpected, func(c context.Context, rs *registeredService) error {
		return rs.impl.Stop(c)
	})

	missing := o.EnabledNotRunning()
	o.fanOut(ctx, "start", missing, func(c context.Context, rs *registeredService) error {
		return rs.impl.Start(c)
	})

	remaining := o.RunningSet()
	results := o.fanOut(ctx, "repair", remaining, func(c context.Context, rs *registeredService) error {
		return rs.impl.Repair(c)
	})
	return firstHardError(results)
}

// VerbResult is one service's outcome from a status or verb fan-out.
type VerbResult struct {
	Service string
	State   VerbState
	Err     error
	Elapsed time.Duration
}

// Status invokes the status probe on target services (all known services
// when names is empty) with a per-call timeout, and returns every result
// regardless of individual failure (failures never cancel siblings).
func (o *Orchestrator) Status(ctx context.Context, names []string) []VerbResult {
	if len(names) == 0 {
		names = o.allNames()
	}
	return o.fanOutStatus(ctx, names)
}

func (o *Orchestrator) allNames() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.services))
	for name := range o.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RotateLogs asks every running service to reopen its log files.
func (o *Orchestrator) RotateLogs(ctx context.Context) error {
	if err := o.lock.Acquire(ctx); err != nil {
		return err
	}
	defer o.lock.Release() //nolint:errcheck

	running := o.RunningSet()
	results := o.fanOut(ctx, "rotate-logs", running, func(c context.Context, rs *registeredService) error {
		return rs.impl.RotateLogs(c)
	})
	return firstHardError(results)
}

// Decommission preflights every service, refuses if any preflight fails or
// the node is already decommissioned, runs Decommission serially, then
// verifies DataDir is empty (aside from the marker) before writing the
// marker file.
func (o *Orchestrator) Decommission(ctx context.Context) error {
	if o.isDecommissioned() {
		return ferrors.ErrDecommissioned
	}

	names := o.allNames()
	preflight := o.fanOut(ctx, "decommission-precheck", names, func(c context.Context, rs *registeredService) error {
		return rs.impl.DecommissionPrecheck(c)
	})
	if err := firstHardError(preflight); err != nil {
		return ferrors.Wrap(ferrors.KindInvalidArgument, "orchestrator.decommission",
			"preflight failed, refusing to decommission", err)
	}

	for _, name := range names {
		rs, ok := o.lookup(name)
		if !ok {
			continue
		}
		if err := rs.impl.Decommission(ctx); err != nil {
			return ferrors.Wrap(ferrors.KindInvalidArgument, "orchestrator.decommission",
				"decommissioning "+name, err)
		}
	}

	if err := o.verifyDataDirEmpty(); err != nil {
		return err
	}
	if o.cfg.DecommissionMarkerPath != "" {
		if err := os.WriteFile(o.cfg.DecommissionMarkerPath, []byte{}, 0o644); err != nil {
			return ferrors.Wrap(ferrors.KindFilesystem, "orchestrator.decommission", "writing marker", err)
		}
	}
	return nil
}

func (o *Orchestrator) verifyDataDirEmpty() error {
	if o.cfg.DataDir == "" {
		return nil
	}
	entries, err := os.ReadDir(o.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ferrors.Wrap(ferrors.KindFilesystem, "orchestrator.decommission", "reading data dir", err)
	}
	for _, e := range entries {
		if e.Name() == "decommissioned" {
			continue
		}
		return ferrors.New(ferrors.KindInvalidArgument, "orchestrator.decommission",
			"data directory not empty after decommissioning: "+e.Name())
	}
	return nil
}

func (o *Orchestrator) clearTmpDir() {
	if o.cfg.TmpDir == "" {
		return
	}
	os.RemoveAll(o.cfg.TmpDir)      //nolint:errcheck
	os.MkdirAll(o.cfg.TmpDir, 0o755) //nolint:errcheck
}

// waitForOkayStatus polls Status at 1s intervals (per spec.md §5) until
// every enabled service reports OK or deadline elapses.
func (o *Orchestrator) waitForOkayStatus(ctx context.Context, deadline time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		results := o.Status(waitCtx, o.EnabledSet())
		if allOK(results) {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return ferrors.Wrap(ferrors.KindTimeout, "orchestrator.start",
				"services did not reach OK before deadline", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func allOK(results []VerbResult) bool {
	for _, r := range results {
		if r.State != VerbOK {
			return false
		}
	}
	return true
}

func firstHardError(results []VerbResult) error {
	for _, r := range results {
		if r.State == VerbError {
			return r.Err
		}
	}
	return nil
}
