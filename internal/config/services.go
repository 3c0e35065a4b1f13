// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
)

// ServiceDeclaration describes one service this node may run. This is
// deliberately minimal: the full settings-loader grammar (glob'd conf
// directories, env-variable overrides, type coercion for arbitrary service
// settings) is an out-of-scope external collaborator per §1/§6. This is
// only the declared-set-of-services parsing spec.md's data model (§3)
// requires something concrete to hand the orchestrator.
type ServiceDeclaration struct {
	Name           string   `koanf:"name"`
	Classification string   `koanf:"classification"` // on, off, default
	Hosts          []string `koanf:"hosts"`

	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`

	PidfilePath string `koanf:"pidfile"`
	LogBasePath string `koanf:"log_base_path"`

	UID int `koanf:"uid"`
	GID int `koanf:"gid"`

	StatusCommand               string `koanf:"status_command"`
	ReloadCommand               string `koanf:"reload_command"`
	RepairCommand               string `koanf:"repair_command"`
	DecommissionPrecheckCommand string `koanf:"decommission_precheck_command"`
	DecommissionCommand         string `koanf:"decommission_command"`
}

// servicesFile is the top-level shape of the declared-services YAML file.
type servicesFile struct {
	Services []ServiceDeclaration `koanf:"services"`
}

// LoadServiceDeclarations reads the declared-services file at path. A
// missing file returns an empty, non-error result: a node with no
// declarations simply supervises nothing.
func LoadServiceDeclarations(path string) ([]ServiceDeclaration, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "config.load_services", "reading services file", err)
	}

	var parsed servicesFile
	if err := k.Unmarshal("", &parsed); err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "config.load_services", "unmarshalling services file", err)
	}

	for _, s := range parsed.Services {
		if s.Name == "" {
			return nil, ferrors.New(ferrors.KindConfiguration, "config.load_services", "service declaration missing name")
		}
		if s.Command == "" {
			return nil, ferrors.New(ferrors.KindConfiguration, "config.load_services", "service "+s.Name+" missing command")
		}
	}

	return parsed.Services, nil
}
