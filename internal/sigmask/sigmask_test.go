// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package sigmask

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIgnoreCatchesSignalDuringSection(t *testing.T) {
	restore := Ignore()

	p, err := os.FindProcess(os.Getpid())
	assert.NoError(t, err)
	assert.NoError(t, p.Signal(syscall.SIGINT))
	time.Sleep(10 * time.Millisecond)

	assert.True(t, restore())
}

func TestIgnoreReportsFalseWhenNothingArrived(t *testing.T) {
	restore := Ignore()
	assert.False(t, restore())
}
