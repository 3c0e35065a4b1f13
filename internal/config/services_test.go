// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServiceDeclarationsMissingFileIsEmpty(t *testing.T) {
	decls, err := LoadServiceDeclarations(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestLoadServiceDeclarationsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	const body = `
services:
  - name: web
    classification: "on"
    command: /usr/bin/web-server
    args: ["--port", "8080"]
    pidfile: /run/fleetsupervisor/supervisor/web.lock
    status_command: /usr/bin/web-server-status
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	decls, err := LoadServiceDeclarations(path)
	require.NoError(t, err)
	require.Len(t, decls, 1)

	d := decls[0]
	assert.Equal(t, "web", d.Name)
	assert.Equal(t, "on", d.Classification)
	assert.Equal(t, "/usr/bin/web-server", d.Command)
	assert.Equal(t, []string{"--port", "8080"}, d.Args)
	assert.Equal(t, "/run/fleetsupervisor/supervisor/web.lock", d.PidfilePath)
	assert.Equal(t, "/usr/bin/web-server-status", d.StatusCommand)
}

func TestLoadServiceDeclarationsMissingNameErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	const body = `
services:
  - command: /usr/bin/web-server
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadServiceDeclarations(path)
	require.Error(t, err)
}

func TestLoadServiceDeclarationsMissingCommandErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	const body = `
services:
  - name: web
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadServiceDeclarations(path)
	require.Error(t, err)
}
