// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package status

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/tomtom215/fleetsupervisor/internal/statuscache"
)

// ResourceThresholds holds the warn/error cutoffs from spec.md §4.8.
type ResourceThresholds struct {
	LoadWarn   float64
	LoadError  float64 // defaults to 40, per spec.md §4.8
	SpikeGrace time.Duration

	DiskWarnFreeMB       float64 // 1000
	DiskErrorFreeMB      float64 // 250
	DiskWarnUsedPercent  float64 // 80
	DiskErrorUsedPercent float64 // 98

	InodeWarnFree  uint64 // 90000
	InodeErrorFree uint64 // 10000
}

// DefaultResourceThresholds returns the thresholds spec.md §4.8 specifies.
func DefaultResourceThresholds() ResourceThresholds {
	return ResourceThresholds{
		LoadWarn:             8,
		LoadError:            40,
		SpikeGrace:           60 * time.Second,
		DiskWarnFreeMB:       1000,
		DiskErrorFreeMB:      250,
		DiskWarnUsedPercent:  80,
		DiskErrorUsedPercent: 98,
		InodeWarnFree:        90000,
		InodeErrorFree:       10000,
	}
}

const loadSpikeCacheKey = "load1-spike-since"

// ResourceChecker samples load, memory, and disk via gopsutil, applying the
// sticky short-spike-grace logic for load via internal/statuscache.
type ResourceChecker struct {
	Cache      *statuscache.Cache
	DiskPaths  []string
	Thresholds ResourceThresholds
}

// NewResourceChecker constructs a checker with the default thresholds.
func NewResourceChecker(cache *statuscache.Cache, diskPaths []string) *ResourceChecker {
	return &ResourceChecker{Cache: cache, DiskPaths: diskPaths, Thresholds: DefaultResourceThresholds()}
}

// CheckLoad samples the 1/5/15-minute load averages and applies the warn
// threshold with sticky spike grace (spec.md §4.8, scenario 6): a crossing
// shorter than SpikeGrace stays OK; sustained past it becomes WARN; crossing
// LoadError is always an immediate ERROR.
func (c *ResourceChecker) CheckLoad(ctx context.Context) (Struct, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return Struct{}, err
	}

	s := NewStruct("", StateRunningOK)
	s.AddDataPoint(DataPoint{Name: "load1", Value: avg.Load1, Unit: UnitGauge}.WithWarn(c.Thresholds.LoadWarn).WithError(c.Thresholds.LoadError))
	s.AddDataPoint(DataPoint{Name: "load5", Value: avg.Load5, Unit: UnitGauge})
	s.AddDataPoint(DataPoint{Name: "load15", Value: avg.Load15, Unit: UnitGauge})

	switch {
	case avg.Load1 > c.Thresholds.LoadError:
		c.Cache.Set(loadSpikeCacheKey, "", 0) //nolint:errcheck
		errState := StateError
		s.Update(fmt.Sprintf("load average %.2f exceeds error threshold %.2f", avg.Load1, c.Thresholds.LoadError), &errState)

	case avg.Load1 > c.Thresholds.LoadWarn:
		since, ok := c.Cache.Get(loadSpikeCacheKey, 0)
		if !ok {
			c.Cache.Set(loadSpikeCacheKey, strconv.FormatInt(time.Now().Unix(), 10), 0) //nolint:errcheck
			break // first sample over threshold: within grace, stays OK
		}
		firstCrossed, parseErr := strconv.ParseInt(since, 10, 64)
		if parseErr == nil && time.Since(time.Unix(firstCrossed, 0)) >= c.Thresholds.SpikeGrace {
			warnState := StateWarn
			s.Update(fmt.Sprintf("load average %.2f exceeds warn threshold %.2f", avg.Load1, c.Thresholds.LoadWarn), &warnState)
		}

	default:
		c.Cache.Set(loadSpikeCacheKey, "", 0) //nolint:errcheck
	}

	return s, nil
}

// CheckMemory reports system used memory, available memory and used
// percent as informational data points.
func (c *ResourceChecker) CheckMemory(ctx context.Context) (Struct, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Struct{}, err
	}
	s := NewStruct("", StateRunningOK)
	s.AddDataPoint(DataPoint{Name: "mem_used", Value: float64(vm.Used), Unit: UnitMemory})
	s.AddDataPoint(DataPoint{Name: "mem_available", Value: float64(vm.Available), Unit: UnitMemory})
	s.AddDataPoint(DataPoint{Name: "mem_used_percent", Value: vm.UsedPercent, Unit: UnitGauge})
	return s, nil
}

// CheckDisk reports free space and free inodes for each configured mount,
// per spec.md §4.8's disk/inode thresholds.
func (c *ResourceChecker) CheckDisk(ctx context.Context) (Struct, error) {
	s := NewStruct("", StateRunningOK)
	for _, path := range c.DiskPaths {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			unknownState := StateUnknown
			s.Update(fmt.Sprintf("disk stats unavailable for %s: %v", path, err), &unknownState)
			continue
		}

		freeMB := float64(usage.Free) / (1024 * 1024)
		s.AddDataPoint(DataPoint{Name: path + "_free_mb", Value: freeMB, Unit: UnitBytes}.
			WithWarn(c.Thresholds.DiskWarnFreeMB).WithError(c.Thresholds.DiskErrorFreeMB))
		s.AddDataPoint(DataPoint{Name: path + "_used_percent", Value: usage.UsedPercent, Unit: UnitGauge}.
			WithWarn(c.Thresholds.DiskWarnUsedPercent).WithError(c.Thresholds.DiskErrorUsedPercent))
		s.AddDataPoint(DataPoint{Name: path + "_free_inodes", Value: float64(usage.InodesFree), Unit: UnitGauge}.
			WithWarn(float64(c.Thresholds.InodeWarnFree)).WithError(float64(c.Thresholds.InodeErrorFree)))

		switch {
		case freeMB < c.Thresholds.DiskErrorFreeMB || usage.UsedPercent > c.Thresholds.DiskErrorUsedPercent:
			errState := StateError
			s.Update(fmt.Sprintf("%s low on space: %.0fMB free, %.1f%% used", path, freeMB, usage.UsedPercent), &errState)
		case freeMB < c.Thresholds.DiskWarnFreeMB || usage.UsedPercent > c.Thresholds.DiskWarnUsedPercent:
			warnState := StateWarn
			s.Update(fmt.Sprintf("%s getting low on space: %.0fMB free, %.1f%% used", path, freeMB, usage.UsedPercent), &warnState)
		}

		switch {
		case usage.InodesFree < c.Thresholds.InodeErrorFree:
			errState := StateError
			s.Update(fmt.Sprintf("%s low on inodes: %d free", path, usage.InodesFree), &errState)
		case usage.InodesFree < c.Thresholds.InodeWarnFree:
			warnState := StateWarn
			s.Update(fmt.Sprintf("%s getting low on inodes: %d free", path, usage.InodesFree), &warnState)
		}
	}
	return s, nil
}
