// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package statuscache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, c.Set("load-1m-spike", "1722268800", 0))

	value, ok := c.Get("load-1m-spike", 0)
	require.True(t, ok)
	assert.Equal(t, "1722268800", value)
}

func TestGetMissingKeyReturnsNotOK(t *testing.T) {
	c := New(t.TempDir())
	_, ok := c.Get("never-set", 0)
	assert.False(t, ok)
}

func TestSetEmptyValueClearsEntry(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, c.Set("k", "v", 0))
	require.NoError(t, c.Set("k", "", 0))
	_, ok := c.Get("k", 0)
	assert.False(t, ok)
}

func TestGetExpiredEntryIsRemoved(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, c.Set("k", "v", time.Millisecond))
	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("k", 0)
	assert.False(t, ok)
}

func TestGetRespectsMaxAgeWithoutClearing(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, c.Set("k", "v", time.Hour))
	_, ok := c.Get("k", time.Nanosecond)
	assert.False(t, ok)

	// The entry must still be present for a caller with a looser maxAge.
	value, ok := c.Get("k", 0)
	require.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestKeySanitizationAvoidsPathTraversal(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, c.Set("../../etc/passwd", "v", 0))
	value, ok := c.Get("../../etc/passwd", 0)
	require.True(t, ok)
	assert.Equal(t, "v", value)
}
