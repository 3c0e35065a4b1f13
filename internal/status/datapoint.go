// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package status

import "fmt"

// Unit is a data point's closed unit vocabulary, per spec.md §4.8/§6.
type Unit int

const (
	UnitNone Unit = iota
	UnitBytes
	UnitCounter
	UnitGauge
	UnitQueueSize
	UnitRecords
	UnitMemory
	UnitSeconds
)

func (u Unit) String() string {
	switch u {
	case UnitBytes:
		return "bytes"
	case UnitCounter:
		return "counter"
	case UnitGauge:
		return "gauge"
	case UnitQueueSize:
		return "queue_size"
	case UnitRecords:
		return "records"
	case UnitMemory:
		return "memory"
	case UnitSeconds:
		return "seconds"
	default:
		return ""
	}
}

// nagiosUnit is the short suffix nagios expects after a value, per spec.md
// §6's mapping table. Units with no native nagios suffix map to "".
var nagiosUnit = map[Unit]string{
	UnitBytes:     "b",
	UnitCounter:   "",
	UnitGauge:     "",
	UnitQueueSize: "",
	UnitRecords:   "",
	UnitMemory:    "b",
	UnitSeconds:   "s",
}

// NagiosSuffix returns the short unit suffix nagios expects after a value.
func (u Unit) NagiosSuffix() string { return nagiosUnit[u] }

// collectdName is the long-form name collectd uses for this unit family,
// per spec.md §6's mapping table.
var collectdName = map[Unit]string{
	UnitBytes:     "bytes",
	UnitCounter:   "count",
	UnitGauge:     "gauge",
	UnitQueueSize: "queue_length",
	UnitRecords:   "records",
	UnitMemory:    "memory",
	UnitSeconds:   "seconds",
}

// CollectdName returns the long-form collectd stat-type name for this unit.
func (u Unit) CollectdName() string { return collectdName[u] }

// DataPoint is one named, typed monitoring value, per spec.md §4.8:
// {value, unit, warn?, error?, min?, max?, group?}.
type DataPoint struct {
	Name  string
	Value float64
	Unit  Unit

	Warn  *float64
	Error *float64
	Min   *float64
	Max   *float64

	// Group overrides the collectd group name; otherwise the owning
	// service's name is used.
	Group string
	// StatName overrides the data point's display name.
	StatName string
}

func ptr(f float64) *float64 { return &f }

// WithWarn returns a copy of d with its warn threshold set.
func (d DataPoint) WithWarn(v float64) DataPoint { d.Warn = ptr(v); return d }

// WithError returns a copy of d with its error threshold set.
func (d DataPoint) WithError(v float64) DataPoint { d.Error = ptr(v); return d }

// WithRange returns a copy of d with its min/max bounds set.
func (d DataPoint) WithRange(min, max float64) DataPoint {
	d.Min = ptr(min)
	d.Max = ptr(max)
	return d
}

func (d DataPoint) String() string {
	return fmt.Sprintf("%s=%v%s", d.Name, d.Value, d.Unit.NagiosSuffix())
}
