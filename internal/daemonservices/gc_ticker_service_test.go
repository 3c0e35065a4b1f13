// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package daemonservices

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tomtom215/fleetsupervisor/internal/installer"
)

func TestNewGCTickerServiceAppliesDefaults(t *testing.T) {
	in := installer.New(filepath.Join(t.TempDir(), "versions"))
	svc := NewGCTickerService(in, 0, 0, 0, nil)
	assert.Equal(t, 3, svc.KeepN)
	assert.Equal(t, 5, svc.Limit)
	assert.NotNil(t, svc.Logger)
	assert.Equal(t, "installer-gc-ticker", svc.String())
}

func TestGCTickerTickNoopsWithNoBranches(t *testing.T) {
	in := installer.New(filepath.Join(t.TempDir(), "versions"))
	svc := NewGCTickerService(in, 0, 1, 1, nil)

	// No branches exist yet; tick should no-op without panicking.
	svc.tick()
}
