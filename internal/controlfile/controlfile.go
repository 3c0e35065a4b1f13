// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package controlfile implements the one piece of local inter-process
// coordination fleetctl and fleetsupervisord need that isn't already
// covered by pidfiles or the node lock: handing a whole-node service verb
// (start/stop/restart/reload/repair/rotate-logs/mode) from a one-shot CLI
// invocation to the long-running daemon that actually owns the supervised
// children. Per spec.md's "no cross-process shared memory; all
// inter-process coordination is via the filesystem," this is a plain
// atomically-written request file the daemon's reconcile ticker polls for
// and a result file fleetctl polls for in turn — never a socket or wire
// protocol.
package controlfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

// Request is one whole-node service verb invocation.
type Request struct {
	ID   string `json:"id"`
	Verb string `json:"verb"` // start, stop, restart, reload, repair, rotate-logs, mode
	// Arg carries the verb's single argument, when it takes one:
	// "maintenance"/"regular" for mode, ignored otherwise.
	Arg  string `json:"arg,omitempty"`
	Hard bool   `json:"hard,omitempty"`
}

// Result is the daemon's response to a processed Request.
type Result struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func requestPath(runDir string) string { return filepath.Join(runDir, "command_request.json") }
func resultPath(runDir, id string) string {
	return filepath.Join(runDir, "command_results", id+".json")
}

// Submit atomically writes req to runDir, failing if a request is already
// pending (the daemon hasn't drained the previous one yet).
func Submit(runDir string, req Request) error {
	path := requestPath(runDir)
	if _, err := os.Stat(path); err == nil {
		return ferrors.New(ferrors.KindLockContention, "controlfile.submit", "a command is already pending for this node")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return ferrors.Wrap(ferrors.KindInvalidArgument, "controlfile.submit", "encoding request", err)
	}
	return atomicWrite(path, data)
}

// Take reads and removes the pending request, if any. Returns ok=false
// when no request is pending (not an error).
func Take(runDir string) (req Request, ok bool, err error) {
	path := requestPath(runDir)
	data, readErr := os.ReadFile(path)
	if os.IsNotExist(readErr) {
		return Request{}, false, nil
	}
	if readErr != nil {
		return Request{}, false, ferrors.Wrap(ferrors.KindFilesystem, "controlfile.take", "reading request", readErr)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		os.Remove(path)
		return Request{}, false, ferrors.Wrap(ferrors.KindInvalidArgument, "controlfile.take", "decoding request", err)
	}
	os.Remove(path)
	return req, true, nil
}

// PublishResult atomically writes res under runDir/command_results so
// fleetctl's Await can pick it up.
func PublishResult(runDir string, res Result) error {
	path := resultPath(runDir, res.ID)
	data, err := json.Marshal(res)
	if err != nil {
		return ferrors.Wrap(ferrors.KindInvalidArgument, "controlfile.publish_result", "encoding result", err)
	}
	return atomicWrite(path, data)
}

// Await polls runDir for req's result until it appears or timeout elapses.
func Await(runDir, id string, timeout time.Duration) (Result, error) {
	path := resultPath(runDir, id)
	deadline := time.Now().Add(timeout)
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			var res Result
			if err := json.Unmarshal(data, &res); err != nil {
				return Result{}, ferrors.Wrap(ferrors.KindInvalidArgument, "controlfile.await", "decoding result", err)
			}
			os.Remove(path)
			return res, nil
		}
		if !os.IsNotExist(err) {
			return Result{}, ferrors.Wrap(ferrors.KindFilesystem, "controlfile.await", "reading result", err)
		}
		if time.Now().After(deadline) {
			return Result{}, fmt.Errorf("timed out waiting for fleetsupervisord to process request %s", id)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "controlfile.write", "creating parent directory", err)
	}
	tmp := fmt.Sprintf("%s.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "controlfile.write", "writing temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.KindFilesystem, "controlfile.write", "renaming into place", err)
	}
	return nil
}
