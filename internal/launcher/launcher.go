// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package launcher forks and execs a supervised child process in one of
// three modes (foreground exec, foreground child, daemon), wiring
// os/exec.Cmd's SysProcAttr/Credential for uid/gid drop, setting OOM-score
// adjustment, and routing stdout/stderr through the stream redirector.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/redirector"
)

// Mode selects one of the three launch behaviors spec'd for a supervised child.
type Mode int

const (
	// ModeForegroundExec never returns: it sets up logs, drops privileges,
	// runs Init if provided, then replaces the process image.
	ModeForegroundExec Mode = iota
	// ModeForegroundChild forks; the parent waits and returns the child's exit code.
	ModeForegroundChild
	// ModeDaemon forks; the parent waits for the pidfile to appear (bounded) then returns.
	ModeDaemon
)

// PidfileWaitTimeout bounds ModeDaemon's wait for the pidfile to appear.
// A var, not a const, so tests can shrink it.
var PidfileWaitTimeout = 10 * time.Second

// PidfilePollInterval is how often ModeDaemon polls for the pidfile.
var PidfilePollInterval = 250 * time.Millisecond

// Spec describes one invocation of a supervised command.
type Spec struct {
	Command string
	Args    []string
	Env     []string
	Chdir   string

	// UID/GID to drop to before exec. Zero value means "don't change."
	UID, GID int

	// OOMScoreAdj is written to /proc/self/oom_score_adj in the child
	// before exec. Failure to set it is a warning, not fatal.
	OOMScoreAdj int

	// Nice is the child's target niceness. Failure to set it is a warning.
	Nice int

	// LogBasePath, if set, routes stdout/stderr through the stream
	// redirector to <LogBasePath>-out.log and <LogBasePath>-error.log. If
	// unset, output is suppressed (redirected to /dev/null). This applies to
	// ModeForegroundChild and ModeDaemon; ModeForegroundExec only creates
	// the log directory and leaves stdout/stderr as inherited.
	LogBasePath string

	// Init, if non-nil, runs inline before ModeForegroundExec replaces the
	// process image with Command. A non-nil return aborts the launch. The
	// other modes do not run Init.
	Init func() error
}

// Result describes the outcome of a ModeForegroundChild or ModeDaemon launch.
type Result struct {
	PID      int
	ExitCode int
}

// Launch runs spec in the given mode. ModeForegroundExec never returns on
// success (the calling process image is replaced); callers running it
// should invoke Launch from a dedicated child process, not the Supervisor
// itself.
func Launch(mode Mode, spec Spec, pidfilePath string) (Result, error) {
	switch mode {
	case ModeForegroundExec:
		return Result{}, foregroundExec(spec)
	case ModeForegroundChild:
		return foregroundChild(spec)
	case ModeDaemon:
		return daemon(spec, pidfilePath)
	default:
		return Result{}, ferrors.New(ferrors.KindInvalidArgument, "launcher.launch", "unknown mode")
	}
}

// foregroundExec sets up logs, drops privileges, optionally runs Init, then
// replaces the process image via syscall.Exec. It does not return on success.
func foregroundExec(spec Spec) error {
	if err := prepareLogDirs(spec); err != nil {
		return err
	}

	if err := dropPrivileges(spec.UID, spec.GID); err != nil {
		return err
	}

	if spec.Init != nil {
		if err := spec.Init(); err != nil {
			return ferrors.Wrap(ferrors.KindChildFailure, "launcher.init", "init function failed", err)
		}
	}

	setOOMScoreAdj(spec.OOMScoreAdj)
	setNice(spec.Nice)

	if spec.Chdir != "" {
		if err := os.Chdir(spec.Chdir); err != nil {
			return ferrors.Wrap(ferrors.KindFilesystem, "launcher.exec", "changing directory", err)
		}
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err == nil {
		syscall.Dup2(int(devNull.Fd()), 0) //nolint:errcheck
		devNull.Close()
	}

	binPath, err := exec.LookPath(spec.Command)
	if err != nil {
		return ferrors.Wrap(ferrors.KindInvalidArgument, "launcher.exec", "resolving command path", err)
	}

	argv := append([]string{spec.Command}, spec.Args...)
	env := spec.Env
	if env == nil {
		env = os.Environ()
	}
	return syscall.Exec(binPath, argv, env) //nolint:gosec
}

// foregroundChild forks (via os/exec) and waits, returning the child's exit code.
func foregroundChild(spec Spec) (Result, error) {
	cmd := buildCmd(spec)

	var redir *redirector.Redirector
	if spec.LogBasePath != "" {
		var err error
		redir, err = redirector.New(spec.LogBasePath)
		if err != nil {
			return Result{}, err
		}
		stdoutW, stderrW, err := redir.Start()
		if err != nil {
			return Result{}, err
		}
		cmd.Stdout = stdoutW
		cmd.Stderr = stderrW
		defer redir.Stop()
	} else {
		cmd.Stdout = nil
		cmd.Stderr = nil
	}

	devNull, err := os.Open(os.DevNull)
	if err == nil {
		cmd.Stdin = devNull
		defer devNull.Close()
	}

	if err := cmd.Start(); err != nil {
		return Result{}, ferrors.Wrap(ferrors.KindChildFailure, "launcher.foreground_child", "starting child", err)
	}

	pid := cmd.Process.Pid
	err = cmd.Wait()
	exitCode := exitCodeOf(err)
	return Result{PID: pid, ExitCode: exitCode}, nil
}

// daemon forks the child via os/exec in its own session and waits for the
// pidfile to appear (up to PidfileWaitTimeout), then returns. The actual
// supervisor loop runs in the forked process, started by the caller's Init
// or by re-exec'ing the daemon binary with the child spec; Launch only
// performs the fork-and-wait-for-readiness half described in spec.md §4.4.
func daemon(spec Spec, pidfilePath string) (Result, error) {
	cmd := buildCmd(spec)
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true

	if spec.LogBasePath != "" {
		redir, err := redirector.New(spec.LogBasePath)
		if err != nil {
			return Result{}, err
		}
		stdoutW, stderrW, err := redir.Start()
		if err != nil {
			return Result{}, err
		}
		cmd.Stdout = stdoutW
		cmd.Stderr = stderrW
	}

	if err := cmd.Start(); err != nil {
		return Result{}, ferrors.Wrap(ferrors.KindChildFailure, "launcher.daemon", "starting daemon child", err)
	}
	go cmd.Wait() //nolint:errcheck

	deadline := time.Now().Add(PidfileWaitTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidfilePath); err == nil {
			return Result{PID: cmd.Process.Pid}, nil
		}
		time.Sleep(PidfilePollInterval)
	}
	return Result{}, ferrors.New(ferrors.KindTimeout, "launcher.daemon", "pidfile did not appear within timeout")
}

// NewCmd builds an *exec.Cmd from spec with SysProcAttr/Credential wired,
// for callers (internal/supervisor) that need direct control over
// Start/Wait/Signal rather than the blocking Launch helpers above.
func NewCmd(spec Spec) *exec.Cmd {
	return buildCmd(spec)
}

// SetChildOOMScoreAdj writes adj to /proc/<pid>/oom_score_adj for an
// already-started child. Failure is a warning per spec.md §4.4.
func SetChildOOMScoreAdj(pid, adj int) bool {
	path := fmt.Sprintf("/proc/%d/oom_score_adj", pid)
	return os.WriteFile(path, []byte(strconv.Itoa(adj)), 0o644) == nil
}

// SetChildNice sets an already-started child's niceness. Failure is a warning.
func SetChildNice(pid, nice int) bool {
	if nice == 0 {
		return true
	}
	return syscall.Setpriority(syscall.PRIO_PROCESS, pid, nice) == nil
}

func buildCmd(spec Spec) *exec.Cmd {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Chdir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if spec.UID != 0 || spec.GID != 0 {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid: uint32(spec.UID),
			Gid: uint32(spec.GID),
		}
	}
	return cmd
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

func prepareLogDirs(spec Spec) error {
	if spec.LogBasePath == "" {
		return nil
	}
	dir := filepath.Dir(spec.LogBasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "launcher.logs", "creating log directory", err)
	}
	if spec.UID != 0 || spec.GID != 0 {
		if err := os.Chown(dir, spec.UID, spec.GID); err != nil {
			return ferrors.Wrap(ferrors.KindFilesystem, "launcher.logs", "chowning log directory", err)
		}
	}
	return nil
}

// dropPrivileges sets gid then uid (order matters: uid drop must come
// last, or the process loses permission to set the group). A zero value
// for either leaves that id unchanged.
func dropPrivileges(uid, gid int) error {
	if gid != 0 {
		if err := syscall.Setgid(gid); err != nil {
			return ferrors.Wrap(ferrors.KindPrivilege, "launcher.drop_privileges", "setgid", err)
		}
	}
	if uid != 0 {
		if err := syscall.Setuid(uid); err != nil {
			return ferrors.Wrap(ferrors.KindPrivilege, "launcher.drop_privileges", "setuid", err)
		}
	}
	return nil
}

// ResolveUser resolves a username to its numeric uid and primary gid.
func ResolveUser(name string) (uid, gid int, err error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, ferrors.Wrap(ferrors.KindConfiguration, "launcher.resolve_user",
			fmt.Sprintf("looking up user %q", name), err)
	}
	uid, _ = strconv.Atoi(u.Uid)
	gid, _ = strconv.Atoi(u.Gid)
	return uid, gid, nil
}

// setOOMScoreAdj writes adj to /proc/self/oom_score_adj. Failure is a
// warning per spec.md §4.4, so errors are swallowed; callers wanting to
// observe failure should check the return value.
func setOOMScoreAdj(adj int) bool {
	err := os.WriteFile("/proc/self/oom_score_adj", []byte(strconv.Itoa(adj)), 0o644)
	return err == nil
}

// setNice sets the current process's niceness. Failure is a warning.
func setNice(nice int) bool {
	if nice == 0 {
		return true
	}
	err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, nice)
	return err == nil
}
