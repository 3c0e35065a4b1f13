// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package config

import "fmt"

// Validate checks that Settings describes a usable daemon configuration.
func (s *Settings) Validate() error {
	if s.Directories.DataDir == "" {
		return fmt.Errorf("directories.data_dir must not be empty")
	}
	if s.Directories.RunDir == "" {
		return fmt.Errorf("directories.run_dir must not be empty")
	}
	if s.Directories.LockDir == "" {
		return fmt.Errorf("directories.lock_dir must not be empty")
	}

	if s.Backoff.Min <= 0 {
		return fmt.Errorf("backoff.min must be positive, got %s", s.Backoff.Min)
	}
	if s.Backoff.Max < s.Backoff.Min {
		return fmt.Errorf("backoff.max (%s) must be >= backoff.min (%s)", s.Backoff.Max, s.Backoff.Min)
	}
	if s.Backoff.Jitter < 0 || s.Backoff.Jitter > 1 {
		return fmt.Errorf("backoff.jitter must be in [0,1], got %v", s.Backoff.Jitter)
	}
	if s.Backoff.Factor <= 1.0 {
		return fmt.Errorf("backoff.factor must be > 1.0, got %v", s.Backoff.Factor)
	}

	if s.Orchestrator.MaxConcurrency <= 0 {
		return fmt.Errorf("orchestrator.max_concurrency must be positive, got %d", s.Orchestrator.MaxConcurrency)
	}
	if s.Orchestrator.VerbTimeout <= 0 {
		return fmt.Errorf("orchestrator.verb_timeout must be positive, got %s", s.Orchestrator.VerbTimeout)
	}

	if s.Status.DiskWarnPercent <= 0 || s.Status.DiskWarnPercent > 100 {
		return fmt.Errorf("status.disk_warn_percent must be in (0,100], got %v", s.Status.DiskWarnPercent)
	}
	if s.Status.DiskErrorPercent < s.Status.DiskWarnPercent {
		return fmt.Errorf("status.disk_error_percent must be >= disk_warn_percent")
	}

	switch s.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", s.Logging.Format)
	}

	return nil
}
