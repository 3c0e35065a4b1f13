// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Command fleetsupervisord is the long-running node daemon: it loads
// settings, wires up the service orchestrator and versioned installer, adds
// every declared service's supervisor to a suture-based supervisor tree, and
// serves that tree until SIGINT/SIGTERM.
//
// fleetsupervisord never talks to fleetctl over the network and holds no
// CLI-session state of its own. fleetctl's status and package commands
// build their own Orchestrator and Installer in-process, per invocation,
// against the same on-disk state (pidfiles, installed-version trees) this
// daemon also reads and writes; its service verbs are handed to this daemon
// as internal/controlfile request files under RunDir, which the reconcile
// ticker service takes and applies to the live Orchestrator.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fleetsupervisor/internal/config"
	"github.com/tomtom215/fleetsupervisor/internal/daemonservices"
	"github.com/tomtom215/fleetsupervisor/internal/installer"
	"github.com/tomtom215/fleetsupervisor/internal/logging"
	"github.com/tomtom215/fleetsupervisor/internal/orchestrator"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
	"github.com/tomtom215/fleetsupervisor/internal/status"
	"github.com/tomtom215/fleetsupervisor/internal/supervisor"
	"github.com/tomtom215/fleetsupervisor/internal/svcadapter"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	deployUser, _ := os.LookupEnv("LC_DEPLOY_USER")
	os.Unsetenv("LC_DEPLOY_USER")
	startupLog := logging.WithDeployUser("fleetsupervisord", deployUser)
	startupLog.Info().Msg("starting fleetsupervisord")

	for _, dir := range []string{cfg.Directories.DataDir, cfg.Directories.RunDir, cfg.Directories.LogDir, cfg.Directories.LockDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Fatal().Err(err).Str("dir", dir).Msg("failed to create required directory")
		}
	}

	slogLogger := logging.NewSlogLogger()
	store := pidfile.NewStore(slogLogger)

	orch := orchestrator.New(orchestrator.Config{
		LockDir:                cfg.Directories.LockDir,
		DataDir:                cfg.Directories.DataDir,
		TmpDir:                 filepath.Join(cfg.Directories.DataDir, "tmp"),
		StateFilePath:          filepath.Join(cfg.Directories.RunDir, "node_state"),
		DecommissionMarkerPath: filepath.Join(cfg.Directories.DataDir, ".fleetsupervisor-decommissioned"),
		MaxConcurrency:         cfg.Orchestrator.MaxConcurrency,
		PerCallTimeout:         cfg.Orchestrator.VerbTimeout,
	}, store, slogLogger)

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	declPath := filepath.Join(cfg.Directories.DataDir, "services.yaml")
	decls, err := config.LoadServiceDeclarations(declPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", declPath).Msg("failed to load service declarations")
	}
	logging.Info().Int("count", len(decls)).Str("path", declPath).Msg("loaded service declarations")

	for _, decl := range decls {
		classification, err := svcadapter.ParseClassification(decl.Classification)
		if err != nil {
			logging.Fatal().Err(err).Str("service", decl.Name).Msg("invalid service classification")
		}
		adapter := svcadapter.New(decl, tree, store)
		orch.Register(orchestrator.ServiceConfig{
			Name:           decl.Name,
			Classification: classification,
			Hosts:          decl.Hosts,
			PidfilePath:    decl.PidfilePath,
		}, adapter)
	}

	in := installer.New(filepath.Join(cfg.Directories.DataDir, "versions"))

	aggregator := status.NewAggregator(orch)
	tree.AddInternalService(daemonservices.NewStatusTickerService(aggregator, 0, status.CheckOptions{
		DoStateChecks:   true,
		DoServiceChecks: true,
		Timeout:         cfg.Status.NetworkTimeout,
	}, slogLogger))

	tree.AddInternalService(daemonservices.NewGCTickerService(in, time.Hour, 3, 5, slogLogger))
	tree.AddInternalService(daemonservices.NewReconcileTickerService(orch, cfg.Directories.RunDir, 0, slogLogger))

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		tree.AddInternalService(daemonservices.NewMetricsService(server, 10*time.Second))
		logging.Info().Str("addr", cfg.Metrics.Listen).Msg("metrics endpoint enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx, 0); err != nil {
		logging.Error().Err(err).Msg("initial orchestrator start reported errors")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor tree to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("fleetsupervisord stopped gracefully")
}
