// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package status

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/fleetsupervisor/internal/orchestrator"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
)

type fakeOrchestratorService struct {
	verbState orchestrator.VerbState
	verbErr   error
	detail    string
	data      map[string]DataPoint
}

func (f *fakeOrchestratorService) Start(context.Context) error { return nil }
func (f *fakeOrchestratorService) Stop(context.Context) error  { return nil }
func (f *fakeOrchestratorService) Status(context.Context) (orchestrator.VerbState, error) {
	return f.verbState, f.verbErr
}
func (f *fakeOrchestratorService) Reload(context.Context) error                { return nil }
func (f *fakeOrchestratorService) Repair(context.Context) error                { return nil }
func (f *fakeOrchestratorService) DecommissionPrecheck(context.Context) error  { return nil }
func (f *fakeOrchestratorService) Decommission(context.Context) error          { return nil }
func (f *fakeOrchestratorService) RotateLogs(context.Context) error            { return nil }
func (f *fakeOrchestratorService) StatusDetail(context.Context) (string, map[string]DataPoint) {
	return f.detail, f.data
}

func newTestAggregator(t *testing.T) (*Aggregator, string) {
	t.Helper()
	dir := t.TempDir()
	store := pidfile.NewStore(nil)
	o := orchestrator.New(orchestrator.Config{
		LockDir: dir,
		DataDir: filepath.Join(dir, "data"),
	}, store, nil)
	return NewAggregator(o), dir
}

func TestMergeStateRespectsSeverityOrder(t *testing.T) {
	assert.Equal(t, StateWarn, MergeState(StateRunningOK, StateWarn))
	assert.Equal(t, StateError, MergeState(StateWarn, StateError))
	assert.Equal(t, StateError, MergeState(StateError, StateRunningOK))
	assert.Equal(t, StateStarting, MergeState(StateError, StateStarting))
	assert.Equal(t, StateUnknown, MergeState(StateError, StateUnknown))
}

func TestStructUpdateAppendsMessagesAndMergesState(t *testing.T) {
	s := NewStruct("first", StateRunningOK)
	warn := StateWarn
	s.Update("second", &warn)
	assert.Equal(t, "first; second", s.Message)
	assert.Equal(t, StateWarn, s.State)

	ok := StateRunningOK
	s.Update("", &ok) // OK never downgrades an existing WARN
	assert.Equal(t, StateWarn, s.State)
}

func TestStructMergePrefixesDataPointKeys(t *testing.T) {
	parent := NewStruct("node", StateRunningOK)
	child := NewStruct("child warn", StateWarn)
	child.AddDataPoint(DataPoint{Name: "queue_depth", Value: 5, Unit: UnitQueueSize})

	parent.Merge("worker", child)
	assert.Contains(t, parent.Message, "child warn")
	assert.Equal(t, StateWarn, parent.State)
	assert.Contains(t, parent.Data, "worker_queue_depth")
}

func TestCheckBuildsServiceStructsFromDetailedService(t *testing.T) {
	a, _ := newTestAggregator(t)
	a.Orchestrator.Register(orchestrator.ServiceConfig{Name: "svc", Classification: orchestrator.ClassificationOn},
		&fakeOrchestratorService{
			verbState: orchestrator.VerbWarn,
			detail:    "queue backing up",
			data:      map[string]DataPoint{"depth": {Name: "depth", Value: 42, Unit: UnitQueueSize}},
		})

	report := a.Check(context.Background(), CheckOptions{DoServiceChecks: true})
	require.Contains(t, report.Services, "svc")
	svc := report.Services["svc"]
	assert.Equal(t, StateWarn, svc.State)
	assert.Equal(t, "queue backing up", svc.Message)
	assert.Contains(t, svc.Data, "depth")
}

func TestCheckStateChecksReflectMissingServices(t *testing.T) {
	a, dir := newTestAggregator(t)
	pidPath := filepath.Join(dir, "svc.lock")
	a.Orchestrator.Register(orchestrator.ServiceConfig{
		Name: "svc", Classification: orchestrator.ClassificationOn, PidfilePath: pidPath,
	}, &fakeOrchestratorService{verbState: orchestrator.VerbOK})

	// Nothing live yet -- node process itself is reported stopped.
	report := a.Check(context.Background(), CheckOptions{DoStateChecks: true})
	assert.Equal(t, StateStopped, report.State)
	assert.Contains(t, report.MissingServices, "svc")
}

func TestNagiosExitCodeMapping(t *testing.T) {
	assert.Equal(t, 0, StateRunningOK.NagiosExitCode())
	assert.Equal(t, 1, StateWarn.NagiosExitCode())
	assert.Equal(t, 1, StateStarting.NagiosExitCode())
	assert.Equal(t, 2, StateError.NagiosExitCode())
	assert.Equal(t, 2, StateDecommissioned.NagiosExitCode())
	assert.Equal(t, 3, StateUnknown.NagiosExitCode())
}
