// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package status

import "strings"

// Struct is one service's (or the node's) status: a human message, a
// state, and named data points, corresponding to the source's stat_struct.
type Struct struct {
	Message string
	State   State
	Data    map[string]DataPoint
}

// NewStruct returns a Struct with the given initial message and state.
func NewStruct(message string, state State) Struct {
	return Struct{Message: message, State: state, Data: map[string]DataPoint{}}
}

// Update appends message (separated by "; " from any existing message) and
// folds state into the current one via MergeState. Passing an empty
// message or a nil state leaves that field untouched.
func (s *Struct) Update(message string, state *State) {
	if message != "" {
		if s.Message != "" {
			s.Message = strings.TrimRight(s.Message, " \t") + "; " + message
		} else {
			s.Message = message
		}
	}
	if state != nil {
		s.State = MergeState(s.State, *state)
	}
}

// AddDataPoint records d under its own name.
func (s *Struct) AddDataPoint(d DataPoint) {
	if s.Data == nil {
		s.Data = map[string]DataPoint{}
	}
	s.Data[d.Name] = d
}

// Merge folds other's state and message into s, and imports other's data
// points with keyPrefix_name keys, matching the source's _merge_status_data.
func (s *Struct) Merge(keyPrefix string, other Struct) {
	st := other.State
	s.Update(other.Message, &st)
	if s.Data == nil {
		s.Data = map[string]DataPoint{}
	}
	for name, d := range other.Data {
		d.Name = keyPrefix + "_" + name
		s.Data[d.Name] = d
	}
}

// FirstLine returns message truncated to its first line, matching the
// source's habit of only surfacing the first line of a multi-line message
// in roll-up text.
func (s Struct) FirstLine() string {
	if i := strings.IndexByte(s.Message, '\n'); i >= 0 {
		return s.Message[:i]
	}
	return s.Message
}
