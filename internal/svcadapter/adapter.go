// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package svcadapter wires a declared service (internal/config.ServiceDeclaration)
// into the orchestrator.Service capability interface, backed by one
// internal/supervisor.Supervisor added dynamically to the daemon's
// SupervisorTree. It is the minimal "glue" the orchestrator needs to manage
// a concrete process; the actual start command, status probe and reload
// script belong to the (out-of-scope) service definition itself, invoked
// here only by path/argv.
package svcadapter

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fleetsupervisor/internal/config"
	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/orchestrator"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
	"github.com/tomtom215/fleetsupervisor/internal/status"
	"github.com/tomtom215/fleetsupervisor/internal/supervisor"
)

// RemoveTimeout bounds how long Stop waits for the supervised child to exit
// cooperatively before giving up on RemoveAndWait.
const RemoveTimeout = 30 * time.Second

// ParseClassification maps a declaration's SERVICE= style string to an
// orchestrator.Classification.
func ParseClassification(s string) (orchestrator.Classification, error) {
	switch s {
	case "", "default":
		return orchestrator.ClassificationDefault, nil
	case "on":
		return orchestrator.ClassificationOn, nil
	case "off":
		return orchestrator.ClassificationOff, nil
	default:
		return 0, ferrors.New(ferrors.KindConfiguration, "svcadapter.classification", "unknown classification "+s)
	}
}

// Tree is the subset of *supervisor.SupervisorTree an Adapter needs; a
// narrow interface keeps this package testable without a real suture tree.
type Tree interface {
	AddServiceSupervisor(svc suture.Service) suture.ServiceToken
	RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error
}

// Adapter implements orchestrator.Service and status.DetailedService for
// one declared service.
type Adapter struct {
	Decl  config.ServiceDeclaration
	Tree  Tree
	Store *pidfile.Store

	sup   *supervisor.Supervisor
	token suture.ServiceToken
	added bool
}

// New constructs an Adapter for decl. The underlying Supervisor is created
// lazily on first Start so repeated Start calls after a Stop get a fresh
// instance.
func New(decl config.ServiceDeclaration, tree Tree, store *pidfile.Store) *Adapter {
	return &Adapter{Decl: decl, Tree: tree, Store: store}
}

func (a *Adapter) newSupervisor() *supervisor.Supervisor {
	return supervisor.New(supervisor.Config{
		Name:        a.Decl.Name,
		Command:     a.Decl.Command,
		Args:        a.Decl.Args,
		UID:         a.Decl.UID,
		GID:         a.Decl.GID,
		PidfilePath: a.Decl.PidfilePath,
		LogBasePath: a.Decl.LogBasePath,
		Store:       a.Store,
	})
}

// Start adds a fresh Supervisor to the tree for this service.
func (a *Adapter) Start(context.Context) error {
	if a.added {
		return nil
	}
	a.sup = a.newSupervisor()
	a.token = a.Tree.AddServiceSupervisor(a.sup)
	a.added = true
	return nil
}

// Stop requests cooperative shutdown and waits (bounded) for removal.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.added {
		return nil
	}
	a.sup.RequestStop()
	timeout := RemoveTimeout
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	err := a.Tree.RemoveAndWait(a.token, timeout)
	a.added = false
	a.sup = nil
	if err != nil {
		return ferrors.Wrap(ferrors.KindChildFailure, "svcadapter.stop", "removing supervisor", err)
	}
	return nil
}

// Status runs the declared status command (a nagios-convention exit code:
// 0=OK, 1=WARN, 2=ERROR, anything else=UNKNOWN) when configured. Otherwise
// it prefers the in-process Supervisor's own lifecycle state when one is
// live (the common case inside fleetsupervisord), and falls back to
// re-reading the pidfile when there isn't one — the path a fresh `fleetctl
// status` invocation takes, matching spec.md's "status re-enters each
// Supervisor's check by reading its pidfile" behavior.
func (a *Adapter) Status(ctx context.Context) (orchestrator.VerbState, error) {
	if a.Decl.StatusCommand != "" {
		code, _, err := runProbe(ctx, a.Decl.StatusCommand)
		if err != nil {
			return orchestrator.VerbUnknown, err
		}
		return verbStateFromExitCode(code), nil
	}
	if a.added && a.sup != nil {
		switch a.sup.State() {
		case supervisor.StateRunning:
			return orchestrator.VerbOK, nil
		case supervisor.StateBackoff, supervisor.StateInit:
			return orchestrator.VerbWarn, nil
		default:
			return orchestrator.VerbError, nil
		}
	}
	rec, err := a.Store.Read(a.Decl.PidfilePath)
	if err != nil {
		return orchestrator.VerbUnknown, err
	}
	if rec.HasPid() {
		return orchestrator.VerbOK, nil
	}
	return orchestrator.VerbError, nil
}

// StatusDetail implements status.DetailedService, giving the status
// aggregator the status command's stdout as the message.
func (a *Adapter) StatusDetail(ctx context.Context) (string, map[string]status.DataPoint) {
	if a.Decl.StatusCommand == "" {
		return "", nil
	}
	_, out, err := runProbe(ctx, a.Decl.StatusCommand)
	if err != nil {
		return err.Error(), nil
	}
	return out, nil
}

// Reload forwards SIGHUP to the running child, or runs the declared reload
// command when one is configured.
func (a *Adapter) Reload(ctx context.Context) error {
	if a.Decl.ReloadCommand != "" {
		return runCommand(ctx, a.Decl.ReloadCommand)
	}
	if a.added && a.sup != nil {
		a.sup.ForwardSignal(syscall.SIGHUP)
	}
	return nil
}

// Repair runs the declared repair command, if any; otherwise a no-op.
func (a *Adapter) Repair(ctx context.Context) error {
	if a.Decl.RepairCommand == "" {
		return nil
	}
	return runCommand(ctx, a.Decl.RepairCommand)
}

// DecommissionPrecheck runs the declared precheck command, if any.
func (a *Adapter) DecommissionPrecheck(ctx context.Context) error {
	if a.Decl.DecommissionPrecheckCommand == "" {
		return nil
	}
	return runCommand(ctx, a.Decl.DecommissionPrecheckCommand)
}

// Decommission runs the declared decommission command, if any.
func (a *Adapter) Decommission(ctx context.Context) error {
	if a.Decl.DecommissionCommand == "" {
		return nil
	}
	return runCommand(ctx, a.Decl.DecommissionCommand)
}

// RotateLogs tells the stream redirector to reopen its log files.
func (a *Adapter) RotateLogs(context.Context) error {
	if a.added && a.sup != nil {
		a.sup.RotateLogs()
	}
	return nil
}

func verbStateFromExitCode(code int) orchestrator.VerbState {
	switch code {
	case 0:
		return orchestrator.VerbOK
	case 1:
		return orchestrator.VerbWarn
	case 2:
		return orchestrator.VerbError
	default:
		return orchestrator.VerbUnknown
	}
}

// runProbe runs command (a shell line, split on spaces; declared commands
// are trusted configuration, not user input) and returns its exit code and
// trimmed stdout.
func runProbe(ctx context.Context, command string) (code int, stdout string, err error) {
	name, args := splitCommand(command)
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	runErr := cmd.Run()
	if runErr == nil {
		return 0, trimTrailingNewline(out.String()), nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), trimTrailingNewline(out.String()), nil
	}
	return -1, "", ferrors.Wrap(ferrors.KindChildFailure, "svcadapter.probe", "running "+name, runErr)
}

func runCommand(ctx context.Context, command string) error {
	name, args := splitCommand(command)
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		return ferrors.Wrap(ferrors.KindChildFailure, "svcadapter.command", "running "+name, err)
	}
	return nil
}

func splitCommand(command string) (string, []string) {
	fields := splitFields(command)
	if len(fields) == 0 {
		return command, nil
	}
	return fields[0], fields[1:]
}

func splitFields(s string) []string {
	var fields []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' {
			if start >= 0 {
				fields = append(fields, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, s[start:])
	}
	return fields
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
