// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package daemonservices holds the fleetsupervisord daemon's own ambient
// background work (the Prometheus exposition listener, the status
// aggregator ticker) as suture.Service implementations added to the
// SupervisorTree's internal layer. None of this is per-service business
// logic; it exists only to keep the daemon's own housekeeping supervised
// the same way the services it manages are.
package daemonservices

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// httpServer matches *http.Server's lifecycle methods, narrowed for testing.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// MetricsService serves Prometheus metrics on a *http.Server for the
// duration of the supervisor tree's lifetime.
type MetricsService struct {
	server          httpServer
	shutdownTimeout time.Duration
}

// NewMetricsService wraps server (normally *http.Server with
// promhttp.Handler() mounted) as a supervised service.
func NewMetricsService(server httpServer, shutdownTimeout time.Duration) *MetricsService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &MetricsService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (m *MetricsService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.shutdownTimeout)
		defer cancel()
		if err := m.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer; suture uses this to name the service in
// event logs.
func (m *MetricsService) String() string { return "metrics-listener" }
