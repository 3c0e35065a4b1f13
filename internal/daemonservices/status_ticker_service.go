// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package daemonservices

import (
	"context"
	"log/slog"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/metrics"
	"github.com/tomtom215/fleetsupervisor/internal/status"
)

// StatusTickerService periodically runs a full node status check and
// publishes the result as Prometheus gauges, so the metrics endpoint always
// reflects a recent aggregator pass rather than only what fleetctl queries
// on demand.
type StatusTickerService struct {
	Aggregator *status.Aggregator
	Interval   time.Duration
	Options    status.CheckOptions
	Logger     *slog.Logger
}

// NewStatusTickerService constructs a ticker with the given period; a zero
// interval defaults to 30s.
func NewStatusTickerService(agg *status.Aggregator, interval time.Duration, opts status.CheckOptions, logger *slog.Logger) *StatusTickerService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusTickerService{Aggregator: agg, Interval: interval, Options: opts, Logger: logger}
}

// Serve implements suture.Service.
func (t *StatusTickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	t.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *StatusTickerService) tick(ctx context.Context) {
	report := t.Aggregator.Check(ctx, t.Options)
	metrics.StatusState.WithLabelValues("node").Set(float64(report.State))

	for name, svc := range report.Services {
		metrics.StatusState.WithLabelValues(name).Set(float64(svc.State))
		for _, dp := range svc.Data {
			metrics.StatusDataPoint.WithLabelValues(name, dp.Name, dp.Unit.String()).Set(dp.Value)
		}
	}

	if report.State != status.StateRunningOK {
		t.Logger.Warn("status check degraded", "state", report.State.String(), "message", report.Message)
	}
}

// String implements fmt.Stringer.
func (t *StatusTickerService) String() string { return "status-ticker" }
