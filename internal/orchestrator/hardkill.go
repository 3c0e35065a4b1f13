// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
)

// HardKillWaitTimeout bounds how long HardKill waits for SIGTERM to take
// effect before escalating to SIGKILL, per spec.md §4.7.1.
const HardKillWaitTimeout = 4 * time.Second

// HardKill enumerates every supervisor pidfile under LockDir/supervisor,
// collapses each recorded pid's descendants (via the OS process-parent
// table) into a flattened set, sends SIGTERM to all of them, waits up to
// HardKillWaitTimeout for everyone to exit, then sends SIGKILL to any
// survivors.
func (o *Orchestrator) HardKill(ctx context.Context) error {
	roots, err := o.pidfileRoots()
	if err != nil {
		return err
	}
	if len(roots) == 0 {
		return nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "orchestrator.hardkill", "listing processes", err)
	}

	children := make(map[int32][]int32, len(procs))
	for _, p := range procs {
		ppid, err := p.PpidWithContext(ctx)
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], p.Pid)
	}

	flattened := map[int32]struct{}{}
	for _, root := range roots {
		collectDescendants(int32(root), children, flattened)
	}
	if len(flattened) == 0 {
		return nil
	}

	for pid := range flattened {
		syscall.Kill(int(pid), syscall.SIGTERM) //nolint:errcheck
	}

	deadline := time.Now().Add(HardKillWaitTimeout)
	for time.Now().Before(deadline) {
		if allDead(flattened) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	for pid := range flattened {
		if syscall.Kill(int(pid), 0) == nil {
			syscall.Kill(int(pid), syscall.SIGKILL) //nolint:errcheck
		}
	}
	return nil
}

func collectDescendants(pid int32, children map[int32][]int32, out map[int32]struct{}) {
	if _, seen := out[pid]; seen {
		return
	}
	out[pid] = struct{}{}
	for _, child := range children[pid] {
		collectDescendants(child, children, out)
	}
}

func allDead(pids map[int32]struct{}) bool {
	for pid := range pids {
		if syscall.Kill(int(pid), 0) == nil {
			return false
		}
	}
	return true
}

// pidfileRoots reads every *.lock pidfile directly under
// LockDir/supervisor and returns the live pids they name.
func (o *Orchestrator) pidfileRoots() ([]int, error) {
	dir := filepath.Join(o.cfg.LockDir, "supervisor")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.KindFilesystem, "orchestrator.hardkill", "reading supervisor lock dir", err)
	}

	store := o.pidfiles
	if store == nil {
		store = pidfile.NewStore(nil)
	}

	var out []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lock") {
			continue
		}
		rec, err := store.Read(filepath.Join(dir, e.Name()))
		if err != nil || !rec.HasPid() {
			continue
		}
		out = append(out, rec.Pid)
	}
	return out, nil
}
