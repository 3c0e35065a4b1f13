// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a settings file is searched for,
// in order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"fleetsupervisor.yaml",
	"fleetsupervisor.yml",
	"/etc/fleetsupervisor/config.yaml",
	"/etc/fleetsupervisor/config.yml",
}

// ConfigPathEnvVar overrides the settings file search above.
const ConfigPathEnvVar = "FLEETSUPERVISOR_CONFIG"

// defaultSettings returns sensible defaults, applied before the config file
// and environment overrides.
func defaultSettings() *Settings {
	return &Settings{
		Directories: DirectoryConfig{
			DataDir:  "/var/lib/fleetsupervisor",
			RunDir:   "/run/fleetsupervisor",
			LogDir:   "/var/log/fleetsupervisor",
			LockDir:  "/run/fleetsupervisor/locks",
			CacheDir: "/var/lib/fleetsupervisor/cache",
		},
		Backoff: BackoffConfig{
			Min:    1 * time.Second,
			Max:    60 * time.Second,
			Jitter: 0.2,
			Factor: 2.0,
		},
		Lock: LockConfig{
			PollInterval:   250 * time.Millisecond,
			AcquireTimeout: 30 * time.Second,
			StaleAfter:     5 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrency: 8,
			VerbTimeout:    30 * time.Second,
			HardKillGrace:  10 * time.Second,
		},
		Status: StatusConfig{
			LoadWarnRatio:    1.0,
			LoadErrorRatio:   2.0,
			DiskWarnPercent:  80.0,
			DiskErrorPercent: 95.0,
			InodeWarnPercent: 90.0,
			SpikeGrace:       30 * time.Second,
			NetworkPeers:     []string{},
			NetworkTimeout:   2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9090",
		},
	}
}

// LoadWithKoanf loads Settings with layered sources:
//  1. Defaults: the struct above
//  2. Config file: optional YAML file, see DefaultConfigPaths
//  3. Environment variables: highest priority, see envTransformFunc
func LoadWithKoanf() (*Settings, error) {
	k := koanf.New(".")

	defaults := defaultSettings()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	settings := &Settings{}
	if err := k.Unmarshal("", settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return settings, nil
}

// findConfigFile searches for a settings file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths that arrive as comma-separated
// strings from the environment but must unmarshal as string slices.
var sliceConfigPaths = []string{
	"status.network_peers",
}

// processSliceFields converts comma-separated env values into slices for
// the paths above; YAML-sourced slices are left untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps FLEETSUPERVISOR_-prefixed environment variables to
// koanf dotted paths, e.g. FLEETSUPERVISOR_BACKOFF_MAX -> backoff.max.
// Unprefixed / unrecognized variables are skipped so arbitrary process
// environment does not leak into settings.
func envTransformFunc(key string) string {
	const prefix = "FLEETSUPERVISOR_"
	if !strings.HasPrefix(key, prefix) {
		return ""
	}
	key = strings.TrimPrefix(key, prefix)
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"data_dir":  "directories.data_dir",
		"run_dir":   "directories.run_dir",
		"log_dir":   "directories.log_dir",
		"lock_dir":  "directories.lock_dir",
		"cache_dir": "directories.cache_dir",

		"backoff_min":    "backoff.min",
		"backoff_max":    "backoff.max",
		"backoff_jitter": "backoff.jitter",
		"backoff_factor": "backoff.factor",

		"lock_poll_interval":   "lock.poll_interval",
		"lock_acquire_timeout": "lock.acquire_timeout",
		"lock_stale_after":     "lock.stale_after",

		"orchestrator_max_concurrency": "orchestrator.max_concurrency",
		"orchestrator_verb_timeout":    "orchestrator.verb_timeout",
		"orchestrator_hard_kill_grace": "orchestrator.hard_kill_grace",

		"status_load_warn_ratio":    "status.load_warn_ratio",
		"status_load_error_ratio":   "status.load_error_ratio",
		"status_disk_warn_percent":  "status.disk_warn_percent",
		"status_disk_error_percent": "status.disk_error_percent",
		"status_inode_warn_percent": "status.inode_warn_percent",
		"status_spike_grace":        "status.spike_grace",
		"status_network_peers":      "status.network_peers",
		"status_network_timeout":    "status.network_timeout",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"metrics_enabled": "metrics.enabled",
		"metrics_listen":  "metrics.listen",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// GetKoanfInstance returns a bare Koanf instance for advanced callers
// (hot-reload, tests).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile watches the settings file for changes and invokes
// callback on each event. Callers are responsible for serializing access
// to any Settings they swap in response.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
