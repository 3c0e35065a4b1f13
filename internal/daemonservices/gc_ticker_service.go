// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package daemonservices

import (
	"context"
	"log/slog"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/installer"
)

// GCTickerService periodically garbage-collects stale installed versions
// across every branch, so operators don't need a cron entry calling
// `fleetctl package delete` by hand for routine cleanup.
type GCTickerService struct {
	Installer *installer.Installer
	Interval  time.Duration
	KeepN     int
	Limit     int
	Logger    *slog.Logger
}

// NewGCTickerService constructs a ticker; a zero interval defaults to 1h,
// zero KeepN defaults to 3 kept versions per branch, zero Limit defaults to
// 5 deletions per pass.
func NewGCTickerService(in *installer.Installer, interval time.Duration, keepN, limit int, logger *slog.Logger) *GCTickerService {
	if interval <= 0 {
		interval = time.Hour
	}
	if keepN <= 0 {
		keepN = 3
	}
	if limit <= 0 {
		limit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GCTickerService{Installer: in, Interval: interval, KeepN: keepN, Limit: limit, Logger: logger}
}

// Serve implements suture.Service.
func (g *GCTickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *GCTickerService) tick() {
	branches, err := g.Installer.Branches()
	if err != nil {
		g.Logger.Warn("gc ticker: listing branches failed", "error", err)
		return
	}
	for _, branch := range branches {
		deleted, err := g.Installer.GCStale(branch, g.KeepN, g.Limit)
		if err != nil {
			g.Logger.Warn("gc ticker: branch gc failed", "branch", branch, "error", err)
			continue
		}
		if deleted > 0 {
			g.Logger.Info("gc ticker: removed stale versions", "branch", branch, "deleted", deleted)
		}
	}
}

// String implements fmt.Stringer.
func (g *GCTickerService) String() string { return "installer-gc-ticker" }
