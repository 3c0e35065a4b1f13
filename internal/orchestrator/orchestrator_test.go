// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
)

type fakeService struct {
	startCalls int
	stopCalls  int
	status     VerbState
	statusErr  error
	startErr   error
	stopErr    error
	precheckErr error
}

func (f *fakeService) Start(ctx context.Context) error { f.startCalls++; return f.startErr }
func (f *fakeService) Stop(ctx context.Context) error   { f.stopCalls++; return f.stopErr }
func (f *fakeService) Status(ctx context.Context) (VerbState, error) {
	return f.status, f.statusErr
}
func (f *fakeService) Reload(ctx context.Context) error               { return nil }
func (f *fakeService) Repair(ctx context.Context) error                { return nil }
func (f *fakeService) DecommissionPrecheck(ctx context.Context) error { return f.precheckErr }
func (f *fakeService) Decommission(ctx context.Context) error         { return nil }
func (f *fakeService) RotateLogs(ctx context.Context) error            { return nil }

func newTestOrchestrator(t *testing.T) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		LockDir:        dir,
		TmpDir:         filepath.Join(dir, "tmp"),
		DataDir:        filepath.Join(dir, "data"),
		StateFilePath:  filepath.Join(dir, "service_state.lock"),
		PerCallTimeout: time.Second,
	}
	store := pidfile.NewStore(nil)
	o := New(cfg, store, nil)
	return o, dir
}

func TestEnabledSetReflectsClassification(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Register(ServiceConfig{Name: "always-on", Classification: ClassificationOn}, &fakeService{})
	o.Register(ServiceConfig{Name: "always-off", Classification: ClassificationOff}, &fakeService{})
	o.Register(ServiceConfig{Name: "default-no-hosts", Classification: ClassificationDefault}, &fakeService{})

	enabled := o.EnabledSet()
	assert.Contains(t, enabled, "always-on")
	assert.NotContains(t, enabled, "always-off")
	assert.Contains(t, enabled, "default-no-hosts") // single-node mode: no service lists a remote host
}

func TestRunningSetReflectsLivePidfile(t *testing.T) {
	o, dir := newTestOrchestrator(t)
	pidPath := filepath.Join(dir, "svc.lock")

	svc := &fakeService{}
	o.Register(ServiceConfig{Name: "svc", Classification: ClassificationOn, PidfilePath: pidPath}, svc)

	assert.Empty(t, o.RunningSet())

	store := pidfile.Store{Liveness: func(pid int) bool { return true }}
	require.NoError(t, store.Write(pidPath, 4242, nil))

	o.pidfiles = &store
	assert.Contains(t, o.RunningSet(), "svc")
}

func TestStartInvokesEnabledNotRunningServices(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	svc := &fakeService{}
	o.Register(ServiceConfig{Name: "svc", Classification: ClassificationOn}, svc)

	err := o.Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.startCalls)
	assert.Equal(t, NodeRunningOK, o.State())
}

func TestStopInvokesRunningServices(t *testing.T) {
	o, dir := newTestOrchestrator(t)
	pidPath := filepath.Join(dir, "svc.lock")
	svc := &fakeService{}
	o.Register(ServiceConfig{Name: "svc", Classification: ClassificationOn, PidfilePath: pidPath}, svc)

	store := pidfile.Store{Liveness: func(pid int) bool { return true }}
	require.NoError(t, store.Write(pidPath, 4242, nil))
	o.pidfiles = &store

	err := o.Stop(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.stopCalls)
	assert.Equal(t, NodeStopped, o.State())
}

func TestStatusFanOutCollectsAllResults(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Register(ServiceConfig{Name: "ok-svc", Classification: ClassificationOn}, &fakeService{status: VerbOK})
	o.Register(ServiceConfig{Name: "warn-svc", Classification: ClassificationOn}, &fakeService{status: VerbWarn})

	results := o.Status(context.Background(), nil)
	assert.Len(t, results, 2)

	byName := map[string]VerbResult{}
	for _, r := range results {
		byName[r.Service] = r
	}
	assert.Equal(t, VerbOK, byName["ok-svc"].State)
	assert.Equal(t, VerbWarn, byName["warn-svc"].State)
}

func TestStatusProbeTimeoutYieldsTimeoutResult(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.cfg.PerCallTimeout = 20 * time.Millisecond
	slow := &slowService{delay: 200 * time.Millisecond}
	o.Register(ServiceConfig{Name: "slow", Classification: ClassificationOn}, slow)

	results := o.Status(context.Background(), nil)
	require.Len(t, results, 1)
	assert.Equal(t, VerbTimeout, results[0].State)
}

type slowService struct {
	fakeService
	delay time.Duration
}

func (s *slowService) Status(ctx context.Context) (VerbState, error) {
	select {
	case <-time.After(s.delay):
		return VerbOK, nil
	case <-ctx.Done():
		return VerbUnknown, ctx.Err()
	}
}

func TestDecommissionRefusesOnFailedPrecheck(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.Register(ServiceConfig{Name: "svc", Classification: ClassificationOn}, &fakeService{
		precheckErr: assertErr("not safe"),
	})

	err := o.Decommission(context.Background())
	assert.Error(t, err)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestHardKillWithNoPidfilesIsNoOp(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	err := o.HardKill(context.Background())
	assert.NoError(t, err)
}

func TestDifferenceComputesSetMinus(t *testing.T) {
	assert.Equal(t, []string{"a"}, difference([]string{"a", "b"}, []string{"b"}))
	assert.Equal(t, []string(nil), difference(nil, []string{"b"}))
}

func TestNodeStatePersistsAcrossReads(t *testing.T) {
	o, dir := newTestOrchestrator(t)
	o.setState(NodeRunningOK)

	state, recordedAt, err := ReadPersistedState(filepath.Join(dir, "service_state.lock"))
	require.NoError(t, err)
	assert.Equal(t, NodeRunningOK, state)
	assert.WithinDuration(t, time.Now(), recordedAt, 5*time.Second)
}
