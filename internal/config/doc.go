// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package config provides layered configuration loading for the supervisor
daemon using Koanf v2.

This is the configuration for the daemon itself — directory layout, backoff
constants, orchestrator concurrency, status thresholds — not the per-service
settings file a supervised service reads on its own (out of scope, see §1).

# Configuration Sources

Settings are merged from three layers, later layers winning:

 1. Built-in defaults (defaultSettings)
 2. An optional YAML file (FLEETSUPERVISOR_CONFIG, or one of DefaultConfigPaths)
 3. Environment variables prefixed FLEETSUPERVISOR_

# Environment Variables

	FLEETSUPERVISOR_DATA_DIR                 - installed versions + link store root
	FLEETSUPERVISOR_RUN_DIR                  - node_state file, controlfile requests/results
	FLEETSUPERVISOR_LOG_DIR                  - redirected child stdout/stderr
	FLEETSUPERVISOR_LOCK_DIR                 - node + per-service lock files
	FLEETSUPERVISOR_BACKOFF_MIN              - minimum restart backoff sleep
	FLEETSUPERVISOR_BACKOFF_MAX              - maximum restart backoff sleep
	FLEETSUPERVISOR_BACKOFF_JITTER           - jitter fraction applied to sleep
	FLEETSUPERVISOR_ORCHESTRATOR_MAX_CONCURRENCY - fan-out worker limit
	FLEETSUPERVISOR_ORCHESTRATOR_VERB_TIMEOUT    - per-service verb deadline
	FLEETSUPERVISOR_STATUS_NETWORK_PEERS     - comma-separated ICMP peer list
	FLEETSUPERVISOR_LOG_LEVEL                - trace, debug, info, warn, error
	FLEETSUPERVISOR_METRICS_LISTEN           - Prometheus listen address

# Usage

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatalf("failed to load settings: %v", err)
	}
	fmt.Println(cfg.Directories.DataDir)

# Validation

LoadWithKoanf calls Settings.Validate() before returning, rejecting
nonsensical directory, backoff, or threshold combinations.

# See Also

  - internal/logging: consumes LoggingConfig via its own Config type
  - internal/orchestrator: cmd/fleetsupervisord and cmd/fleetctl pass it
    OrchestratorConfig's MaxConcurrency and VerbTimeout
  - internal/status: cmd/fleetsupervisord passes StatusConfig's
    NetworkTimeout as the status check timeout

BackoffConfig, LockConfig, OrchestratorConfig.HardKillGrace,
DirectoryConfig.CacheDir and the other StatusConfig fields are loaded,
and some validated, but no other package reads them: internal/supervisor
and internal/nodelock use their own built-in defaults.
*/
package config
