// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package controlfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitTakeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	req := Request{ID: "abc", Verb: "start"}

	require.NoError(t, Submit(dir, req))

	got, ok, err := Take(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, req, got)

	// Request file is consumed by Take.
	_, ok, err = Take(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubmitWhilePendingFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Submit(dir, Request{ID: "first", Verb: "stop"}))

	err := Submit(dir, Request{ID: "second", Verb: "start"})
	require.Error(t, err)
}

func TestPublishResultAndAwait(t *testing.T) {
	dir := t.TempDir()
	res := Result{ID: "xyz", OK: true}
	require.NoError(t, PublishResult(dir, res))

	got, err := Await(dir, "xyz", time.Second)
	require.NoError(t, err)
	assert.Equal(t, res, got)
}

func TestAwaitTimesOutWhenNoResultAppears(t *testing.T) {
	dir := t.TempDir()
	_, err := Await(dir, "never-published", 100*time.Millisecond)
	require.Error(t, err)
}

func TestAwaitSeesResultPublishedAfterPolling(t *testing.T) {
	dir := t.TempDir()
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = PublishResult(dir, Result{ID: "late", OK: false, Message: "boom"})
	}()

	res, err := Await(dir, "late", time.Second)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "boom", res.Message)
}
