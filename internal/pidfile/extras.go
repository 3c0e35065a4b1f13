// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package pidfile

import (
	"strconv"
	"time"
)

// Well-known extras keys used by the Supervisor (internal/supervisor).
const (
	KeyDaemonStartTime      = "daemon_start_time"
	KeyChildPID             = "child_pid"
	KeyChildStartTime       = "child_start_time"
	KeyStartCount           = "start_count"
	KeyPriorChildStartTime  = "prior_child_start_time"
	KeyStatusMessage        = "status_message"
)

// ChildPID returns extras[child_pid] as an int, or 0 if absent/unparsable.
func (r Record) ChildPID() int {
	n, ok := r.Int64(KeyChildPID)
	if !ok {
		return 0
	}
	return int(n)
}

// StartCount returns extras[start_count] as an int, or 0 if absent.
func (r Record) StartCount() int {
	n, ok := r.Int64(KeyStartCount)
	if !ok {
		return 0
	}
	return int(n)
}

// Timestamp parses extras[key] as an RFC3339 timestamp.
func (r Record) Timestamp(key string) (time.Time, bool) {
	v, ok := r.Extras[key]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTimestamp formats t as RFC3339 into delta[key], for use with Store.Update.
func SetTimestamp(delta map[string]string, key string, t time.Time) {
	delta[key] = t.Format(time.RFC3339)
}

// SetInt formats n into delta[key], for use with Store.Update.
func SetInt(delta map[string]string, key string, n int) {
	delta[key] = strconv.Itoa(n)
}
