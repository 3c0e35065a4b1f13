// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package daemonservices

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHTTPServer struct {
	listenCh   chan struct{}
	shutdownCh chan struct{}
	listenErr  error
}

func (f *fakeHTTPServer) ListenAndServe() error {
	close(f.listenCh)
	<-f.shutdownCh
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(ctx context.Context) error {
	close(f.shutdownCh)
	return nil
}

func TestMetricsServiceStopsOnContextCancel(t *testing.T) {
	srv := &fakeHTTPServer{listenCh: make(chan struct{}), shutdownCh: make(chan struct{})}
	svc := NewMetricsService(srv, 5*time.Second)
	assert.Equal(t, "metrics-listener", svc.String())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.listenCh
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
