// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package daemonservices

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/fleetsupervisor/internal/controlfile"
	"github.com/tomtom215/fleetsupervisor/internal/orchestrator"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
)

func newTestOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	dir := t.TempDir()
	cfg := orchestrator.Config{
		LockDir:       dir,
		TmpDir:        filepath.Join(dir, "tmp"),
		DataDir:       filepath.Join(dir, "data"),
		StateFilePath: filepath.Join(dir, "service_state.lock"),
	}
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	store := pidfile.NewStore(nil)
	return orchestrator.New(cfg, store, nil)
}

func TestReconcileTickApplyMode(t *testing.T) {
	orch := newTestOrchestrator(t)
	runDir := t.TempDir()
	svc := NewReconcileTickerService(orch, runDir, time.Millisecond, nil)

	require.NoError(t, svc.apply(context.Background(), controlfile.Request{ID: "1", Verb: "mode", Arg: "maintenance"}))
	assert.True(t, orch.IsInMaintenanceMode())

	require.NoError(t, svc.apply(context.Background(), controlfile.Request{ID: "2", Verb: "mode", Arg: "regular"}))
	assert.False(t, orch.IsInMaintenanceMode())
}

func TestReconcileTickApplyUnknownVerb(t *testing.T) {
	orch := newTestOrchestrator(t)
	svc := NewReconcileTickerService(orch, t.TempDir(), time.Millisecond, nil)

	err := svc.apply(context.Background(), controlfile.Request{ID: "1", Verb: "nonsense"})
	require.Error(t, err)
}

func TestReconcileTickPublishesResultForPendingRequest(t *testing.T) {
	orch := newTestOrchestrator(t)
	runDir := t.TempDir()
	svc := NewReconcileTickerService(orch, runDir, time.Millisecond, nil)

	require.NoError(t, controlfile.Submit(runDir, controlfile.Request{ID: "req-1", Verb: "mode", Arg: "maintenance"}))

	svc.tick(context.Background())

	res, err := controlfile.Await(runDir, "req-1", time.Second)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, orch.IsInMaintenanceMode())
}

func TestReconcileTickNoopWhenNothingPending(t *testing.T) {
	orch := newTestOrchestrator(t)
	svc := NewReconcileTickerService(orch, t.TempDir(), time.Millisecond, nil)
	svc.tick(context.Background())
}
