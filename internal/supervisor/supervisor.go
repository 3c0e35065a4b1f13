// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/launcher"
	"github.com/tomtom215/fleetsupervisor/internal/metrics"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
	"github.com/tomtom215/fleetsupervisor/internal/redirector"
)

// State is one stage of the per-child state machine: Init -> Running ->
// Backoff -> Running -> ... -> Stopping -> Exited.
type State int

const (
	StateInit State = iota
	StateRunning
	StateBackoff
	StateStopping
	StateExited
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// BackoffConfig tunes the restart backoff curve; zero values fall back to
// the spec defaults (5s/30s/60s).
type BackoffConfig struct {
	Min    time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// DefaultBackoffConfig matches spec.md §4.6's defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Min: 5 * time.Second, Max: 30 * time.Second, Jitter: 60 * time.Second}
}

// FreeSpaceChecker reports whether every directory it guards has at least
// the minimum required free space, naming a low directory when not. This
// package ships no implementation: Serve runs the guard only when
// Config.CheckFreeSpace is set.
type FreeSpaceChecker func() (ok bool, low string, err error)

// MinFreeSpace is a 100 MiB free-space floor. Serve does not read it; a
// FreeSpaceChecker applies whatever threshold it implements.
const MinFreeSpace = 100 * 1024 * 1024 // 100 MiB

// LowSpaceRetryDelay is how long the loop sleeps after detecting low space.
const LowSpaceRetryDelay = 10 * time.Second

// Config describes one supervised child process.
type Config struct {
	Name string

	Command string
	Args    []string
	Env     []string
	Chdir   string

	UID, GID    int
	OOMScoreAdj int
	Nice        int

	PidfilePath string
	LogBasePath string

	Backoff BackoffConfig

	// StopFunc, if set, is invoked with the child's pid to request a
	// cooperative stop instead of forwarding SIGTERM directly.
	StopFunc func(childPID int) error

	// Init runs in-process on the supervisor's very first fork only,
	// before the child's binary is launched. A non-nil return makes Serve
	// return that error, wrapped, without launching the child; no stop
	// sequence runs, and because no child was started the next call to
	// Serve runs Init again.
	Init func() error

	// CheckFreeSpace is the free-space guard run before each fork; nil (the
	// zero value) disables it.
	CheckFreeSpace FreeSpaceChecker

	Store  *pidfile.Store
	Logger *slog.Logger
}

type eventKind int

const (
	eventStop eventKind = iota
	eventRotateLogs
	eventForwardSignal
)

type supervisorEvent struct {
	kind   eventKind
	signal syscall.Signal
}

// Supervisor is the per-child-process watchdog described in spec.md §4.6:
// it owns a single child via internal/launcher, writes its pidfile,
// restarts it with backoff on unexpected exit, and exposes an event API
// for cooperative stop, log rotation, and signal forwarding in place of
// installing real UNIX signal handlers per process (there is one OS
// process for the whole daemon, not one per supervised child; see
// SPEC_FULL.md §4.6 and §9's redesign note).
type Supervisor struct {
	cfg Config

	store      *pidfile.Store
	logger     *slog.Logger
	redir      *redirector.Redirector
	events     chan supervisorEvent
	state      State
	stateMu    sync.Mutex
	startCount int
	// continuousRestarts is the crash-loop counter computeBackoff grows
	// and resets; distinct from startCount, which is the pidfile's
	// lifetime start_count and is never reset. See spec.md §4.6 step 7.
	continuousRestarts int
	priorStart         time.Time

	cmd   *exec.Cmd
	rng   *rand.Rand
	rngMu sync.Mutex
}

// New constructs a Supervisor for cfg. Backoff zero values are replaced
// with DefaultBackoffConfig.
func New(cfg Config) *Supervisor {
	if cfg.Backoff.Min == 0 && cfg.Backoff.Max == 0 && cfg.Backoff.Jitter == 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	store := cfg.Store
	if store == nil {
		store = pidfile.NewStore(cfg.Logger)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		store:  store,
		logger: logger.With("service", cfg.Name),
		events: make(chan supervisorEvent, 8),
		state:  StateInit,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// String satisfies suture's loggable-service convention.
func (s *Supervisor) String() string { return "supervisor:" + s.cfg.Name }

func (s *Supervisor) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
	metrics.StatusState.WithLabelValues(s.cfg.Name).Set(float64(st))
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// RequestStop requests cooperative shutdown: equivalent to TERM in the
// spec's per-process signal table.
func (s *Supervisor) RequestStop() { s.enqueue(supervisorEvent{kind: eventStop}) }

// RotateLogs causes the stream redirector to reopen its log files:
// equivalent to WINCH.
func (s *Supervisor) RotateLogs() { s.enqueue(supervisorEvent{kind: eventRotateLogs}) }

// ForwardSignal forwards sig to the running child unchanged: equivalent to
// HUP, INT, USR1, USR2, QUIT in the spec's per-process signal table.
func (s *Supervisor) ForwardSignal(sig syscall.Signal) {
	s.enqueue(supervisorEvent{kind: eventForwardSignal, signal: sig})
}

func (s *Supervisor) enqueue(ev supervisorEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("event queue full, dropping event")
	}
}

// Serve runs the main loop until ctx is canceled or a cooperative stop
// completes. It satisfies suture.Service so a *Supervisor can be added
// directly to a SupervisorTree's services layer.
func (s *Supervisor) Serve(ctx context.Context) error {
	s.setState(StateInit)

	for {
		if s.cmd == nil {
			// Step 1: verify pidfile ownership (another supervisor may have
			// taken over if our write lost a race or we were restarted stale).
			if rec, err := s.store.Read(s.cfg.PidfilePath); err == nil && rec.HasPid() && rec.Pid != os.Getpid() {
				return ferrors.New(ferrors.KindLockContention, "supervisor.serve",
					fmt.Sprintf("pidfile for %s is owned by another live supervisor (pid %d)", s.cfg.Name, rec.Pid))
			}

			// Step 2: free space guard.
			if checker := s.cfg.CheckFreeSpace; checker != nil {
				ok, low, err := checker()
				if err != nil {
					s.logger.Warn("free space check failed", "error", err)
				} else if !ok {
					s.logger.Warn("low free space, deferring restart", "directory", low)
					if !s.cancellableSleep(ctx, LowSpaceRetryDelay) {
						s.cleanup()
						return ctx.Err()
					}
					continue
				}
			}

			// Step 3: fork.
			if err := s.forkChild(); err != nil {
				return err
			}
		}
		s.setState(StateRunning)

		runStart := s.priorStart
		childExit := s.waitForChild()

		stopped, err := s.waitForEventOrExit(ctx, childExit)
		if stopped {
			s.cmd = nil
			s.setState(StateExited)
			s.cleanup()
			return err
		}
		s.cmd = nil

		// Unexpected exit: back off, then loop around to refork.
		s.setState(StateBackoff)
		if !s.cancellableSleep(ctx, s.computeBackoff(runStart)) {
			s.cleanup()
			return ctx.Err()
		}
	}
}

// waitForEventOrExit blocks until either the child exits on its own, or a
// stop is requested (by context cancellation or RequestStop), in which case
// it forwards a stop to the child and waits for it to actually exit before
// returning. RotateLogs and ForwardSignal events are applied in place
// without otherwise disturbing the wait.
func (s *Supervisor) waitForEventOrExit(ctx context.Context, childExit <-chan struct{}) (stopped bool, err error) {
	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopping)
			s.requestChildStop()
			<-childExit
			return true, ctx.Err()

		case ev := <-s.events:
			switch ev.kind {
			case eventStop:
				s.setState(StateStopping)
				s.requestChildStop()
				<-childExit
				return true, nil
			case eventRotateLogs:
				if s.redir != nil {
					s.redir.Rotate()
				}
			case eventForwardSignal:
				if s.cmd != nil && s.cmd.Process != nil {
					s.cmd.Process.Signal(ev.signal) //nolint:errcheck
				}
			}

		case <-childExit:
			return false, nil
		}
	}
}

// forkChild starts the child via internal/launcher's command builder,
// writes the pidfile, and sets up the stream redirector.
func (s *Supervisor) forkChild() error {
	if s.cfg.LogBasePath != "" && s.redir == nil {
		redir, err := redirector.New(s.cfg.LogBasePath)
		if err != nil {
			return err
		}
		s.redir = redir
	}

	spec := launcher.Spec{
		Command: s.cfg.Command,
		Args:    s.cfg.Args,
		Env:     s.cfg.Env,
		Chdir:   s.cfg.Chdir,
		UID:     s.cfg.UID,
		GID:     s.cfg.GID,
	}
	cmd := launcher.NewCmd(spec)

	if s.redir != nil {
		stdoutW, stderrW, err := s.redir.Start()
		if err != nil {
			return err
		}
		cmd.Stdout = stdoutW
		cmd.Stderr = stderrW
	}
	if devNull, err := os.Open(os.DevNull); err == nil {
		cmd.Stdin = devNull
	}

	isFirstRun := s.startCount == 0
	if isFirstRun && s.cfg.Init != nil {
		if err := s.cfg.Init(); err != nil {
			return ferrors.Wrap(ferrors.KindChildFailure, "supervisor.init", "init hook failed", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return ferrors.Wrap(ferrors.KindChildFailure, "supervisor.fork", "starting child", err)
	}
	s.cmd = cmd

	if s.cfg.OOMScoreAdj != 0 {
		launcher.SetChildOOMScoreAdj(cmd.Process.Pid, s.cfg.OOMScoreAdj)
	}
	if s.cfg.Nice != 0 {
		launcher.SetChildNice(cmd.Process.Pid, s.cfg.Nice)
	}

	now := time.Now().UTC()
	delta := map[string]string{}
	pidfile.SetInt(delta, pidfile.KeyChildPID, cmd.Process.Pid)
	pidfile.SetTimestamp(delta, pidfile.KeyChildStartTime, now)
	if !s.priorStart.IsZero() {
		pidfile.SetTimestamp(delta, pidfile.KeyPriorChildStartTime, s.priorStart)
	}
	s.startCount++
	pidfile.SetInt(delta, pidfile.KeyStartCount, s.startCount)
	pidfile.SetTimestamp(delta, pidfile.KeyDaemonStartTime, now)

	if err := s.store.Write(s.cfg.PidfilePath, os.Getpid(), mergeExtras(s.readExtras(), delta)); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "supervisor.fork", "writing pidfile", err)
	}
	s.priorStart = now
	return nil
}

func (s *Supervisor) readExtras() map[string]string {
	rec, err := s.store.Read(s.cfg.PidfilePath)
	if err != nil {
		return map[string]string{}
	}
	return rec.Extras
}

func mergeExtras(base, delta map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(delta))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// waitForChild returns a channel closed when the current child exits.
func (s *Supervisor) waitForChild() <-chan struct{} {
	done := make(chan struct{})
	cmd := s.cmd
	go func() {
		err := cmd.Wait()
		exitCode := exitCodeOf(err)
		uptime := time.Since(s.priorStart)
		metrics.ObserveChildExit(s.cfg.Name, exitCode, uptime)
		close(done)
	}()
	return done
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// requestChildStop invokes the configured StopFunc, or forwards SIGTERM,
// to the running child.
func (s *Supervisor) requestChildStop() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if s.cfg.StopFunc != nil {
		if err := s.cfg.StopFunc(s.cmd.Process.Pid); err != nil {
			s.logger.Warn("stop function failed, forwarding SIGTERM", "error", err)
			s.cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck
		}
		return
	}
	s.cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck
}

// computeBackoff implements spec.md §4.6 step 7's formula:
// min(MIN + (n-1)*10, MAX) - last_run_duration + U(0, JITTER), resetting
// continuousRestarts whenever the child ran at least MAX and incrementing
// it otherwise. This counter is separate from startCount (the pidfile's
// lifetime start_count), which is never reset.
func (s *Supervisor) computeBackoff(runStart time.Time) time.Duration {
	lastRunDuration := time.Since(runStart)
	b := s.cfg.Backoff

	if lastRunDuration >= b.Max {
		s.continuousRestarts = 0
	} else {
		s.continuousRestarts++
	}

	n := s.continuousRestarts
	if n < 1 {
		n = 1
	}
	base := b.Min + time.Duration(n-1)*10*time.Second
	if base > b.Max {
		base = b.Max
	}

	sleep := base - lastRunDuration
	if sleep < 0 {
		sleep = 0
	}

	jitter := s.jitterDuration(b.Jitter)
	total := sleep + jitter
	metrics.BackoffSleepSeconds.WithLabelValues(s.cfg.Name).Observe(total.Seconds())
	metrics.ContinuousFailures.WithLabelValues(s.cfg.Name).Set(float64(n))
	return total
}

func (s *Supervisor) jitterDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return time.Duration(s.rng.Int63n(int64(max)))
}

// cancellableSleep sleeps for d, returning false early if ctx is done or a
// Stop event arrives (which is itself then re-queued so the caller's next
// loop iteration observes it).
func (s *Supervisor) cancellableSleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case ev := <-s.events:
		if ev.kind == eventStop {
			return false
		}
		// Non-stop events during a sleep (e.g. a forwarded signal with no
		// live child) are simply dropped; there is nothing to apply them to.
		return s.cancellableSleep(ctx, d)
	}
}

func (s *Supervisor) cleanup() {
	if s.redir != nil {
		s.redir.Stop()
	}
	if err := s.store.Release(s.cfg.PidfilePath); err != nil {
		s.logger.Warn("failed to release pidfile on exit", "error", err)
	}
}
