// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package config

import "time"

// Settings holds every tunable for the supervisor daemon itself: directory
// layout, per-child backoff constants, orchestrator fan-out limits, status
// aggregator thresholds, and the ambient logging/metrics surface. It is
// distinct from a service's own settings file (out of scope, per §1/§6).
type Settings struct {
	Directories DirectoryConfig `koanf:"directories"`
	Backoff     BackoffConfig   `koanf:"backoff"`
	Lock        LockConfig      `koanf:"lock"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Status      StatusConfig    `koanf:"status"`
	Logging     LoggingConfig   `koanf:"logging"`
	Metrics     MetricsConfig   `koanf:"metrics"`
}

// DirectoryConfig lays out the filesystem paths the daemon owns.
type DirectoryConfig struct {
	DataDir  string `koanf:"data_dir"`  // installed versions, staging, link store
	RunDir   string `koanf:"run_dir"`   // node_state file, controlfile requests/results
	LogDir   string `koanf:"log_dir"`   // redirected child stdout/stderr
	LockDir  string `koanf:"lock_dir"`  // node lock + per-service locks
	CacheDir string `koanf:"cache_dir"` // statuscache TTL files
}

// BackoffConfig parameterizes the per-child restart backoff curve (§4.6).
type BackoffConfig struct {
	Min    time.Duration `koanf:"min"`
	Max    time.Duration `koanf:"max"`
	Jitter float64       `koanf:"jitter"`
	// Factor is loaded and validated (> 1.0) but not read elsewhere;
	// internal/supervisor's backoff grows by a fixed 10s per failure.
	Factor float64 `koanf:"factor"`
}

// LockConfig tunes the node lock (§4.9) acquisition loop.
type LockConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`
	StaleAfter   time.Duration `koanf:"stale_after"`
}

// OrchestratorConfig bounds the service orchestrator's fan-out (§4.7, §5).
type OrchestratorConfig struct {
	MaxConcurrency int64         `koanf:"max_concurrency"`
	VerbTimeout    time.Duration `koanf:"verb_timeout"`
	HardKillGrace  time.Duration `koanf:"hard_kill_grace"`
}

// StatusConfig carries the status aggregator's thresholds (§4.8).
type StatusConfig struct {
	LoadWarnRatio    float64       `koanf:"load_warn_ratio"`
	LoadErrorRatio   float64       `koanf:"load_error_ratio"`
	DiskWarnPercent  float64       `koanf:"disk_warn_percent"`
	DiskErrorPercent float64       `koanf:"disk_error_percent"`
	InodeWarnPercent float64       `koanf:"inode_warn_percent"`
	SpikeGrace       time.Duration `koanf:"spike_grace"`
	NetworkPeers     []string      `koanf:"network_peers"`
	NetworkTimeout   time.Duration `koanf:"network_timeout"`
}

// LoggingConfig mirrors internal/logging.Config, duplicated here so the
// config package has no import-cycle dependency on logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}
