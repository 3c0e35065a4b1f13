// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package orchestrator

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/metrics"
)

// NodeState is this node's lifecycle stage, totally ordered:
// Stopped -> Starting -> RunningOK -> Stopping -> Stopped.
type NodeState int

const (
	NodeStopped NodeState = iota
	NodeStarting
	NodeRunningOK
	NodeStopping
)

func (s NodeState) String() string {
	switch s {
	case NodeStopped:
		return "STOPPED"
	case NodeStarting:
		return "STARTING"
	case NodeRunningOK:
		return "RUNNING_OK"
	case NodeStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// setState transitions the node state, persists it to StateFilePath (when
// set) as "<state_code>\n<unix_time>" per the node runtime layout, and
// updates the node-state gauge.
func (o *Orchestrator) setState(st NodeState) {
	o.stateMu.Lock()
	o.state = st
	o.stateMu.Unlock()
	metrics.NodeState.Set(float64(st))

	if o.cfg.StateFilePath == "" {
		return
	}
	contents := fmt.Sprintf("%d\n%d\n", int(st), time.Now().Unix())
	tmp := o.cfg.StateFilePath + ".tmp"
	if err := os.WriteFile(tmp, []byte(contents), 0o644); err != nil {
		return
	}
	os.Rename(tmp, o.cfg.StateFilePath) //nolint:errcheck
}

// State returns the current node lifecycle state.
func (o *Orchestrator) State() NodeState {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	return o.state
}

// ReadPersistedState loads a previously written state file and the time it
// records. A missing file reads as NodeStopped with a zero time. It only
// parses; crash-recovery detection is IsIllegalRecoveredTransition's job.
func ReadPersistedState(path string) (state NodeState, recordedAt time.Time, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return NodeStopped, time.Time{}, nil
		}
		return 0, time.Time{}, ferrors.Wrap(ferrors.KindFilesystem, "orchestrator.read_state", "reading state file", readErr)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return 0, time.Time{}, ferrors.New(ferrors.KindFilesystem, "orchestrator.read_state", "malformed state file")
	}
	code, err1 := strconv.Atoi(lines[0])
	epoch, err2 := strconv.ParseInt(lines[1], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, time.Time{}, ferrors.New(ferrors.KindFilesystem, "orchestrator.read_state", "malformed state file")
	}
	return NodeState(code), time.Unix(epoch, 0), nil
}

// IsIllegalRecoveredTransition reports whether a node booting fresh
// (bootTime) finds a persisted state that implies it was mid-operation
// when it last ran — e.g. STARTING or STOPPING with no matching STOPPED
// record newer than bootTime. Per spec.md §5, this can only happen on
// crash recovery.
func IsIllegalRecoveredTransition(persisted NodeState, recordedAt, bootTime time.Time) bool {
	if persisted == NodeStopped {
		return false
	}
	return recordedAt.Before(bootTime)
}
