// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Command fleetctl is the operator-facing front end: a thin, flag-based
// command tree (deliberately not built on a CLI framework, per the
// command-line front end being an out-of-scope external collaborator that
// this repo only specifies the interface of) dispatching to three
// self-contained verb groups: `status` and `package` drive the orchestrator
// and installer directly against on-disk state, while `service` hands its
// request off to the already-running fleetsupervisord daemon via
// internal/controlfile, since only that process holds the live supervisor
// tree.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/config"
	"github.com/tomtom215/fleetsupervisor/internal/controlfile"
	"github.com/tomtom215/fleetsupervisor/internal/installer"
	"github.com/tomtom215/fleetsupervisor/internal/logging"
	"github.com/tomtom215/fleetsupervisor/internal/orchestrator"
	"github.com/tomtom215/fleetsupervisor/internal/pidfile"
	"github.com/tomtom215/fleetsupervisor/internal/sigmask"
	"github.com/tomtom215/fleetsupervisor/internal/status"
	"github.com/tomtom215/fleetsupervisor/internal/status/format"
	"github.com/tomtom215/fleetsupervisor/internal/svcadapter"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl: loading configuration:", err)
		return 2
	}

	switch args[0] {
	case "service":
		return runService(cfg, args[1:])
	case "status":
		return runStatus(cfg, args[1:])
	case "package":
		return runPackage(cfg, args[1:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "fleetctl: unknown command %q\n\n%s\n", args[0], usage)
		return 2
	}
}

const usage = `usage:
  fleetctl service {start|stop|restart|reload|repair|rotate-logs|mode {maintenance|regular}|conf {set|unset} K[=V]...} [--wait=secs] [--hard]
  fleetctl status [service NAME...|state] [--format {collectd,nagios,errors-only,silent}] [--timeout secs]
  fleetctl package {branch NAME|upgrade|rollback V|delete V|pinning {on|off}|versions|check-version|add-version DIR SRC BRANCH VERSION}`

// --- service: one-shot handoff to the running daemon via controlfile ---

func runService(cfg *config.Settings, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "fleetctl service: missing verb")
		return 2
	}
	verb := args[0]
	rest := args[1:]

	switch verb {
	case "start", "stop", "restart", "reload", "repair", "rotate-logs":
		return submitService(cfg, verb, "", rest)
	case "mode":
		if len(rest) == 0 || (rest[0] != "maintenance" && rest[0] != "regular") {
			fmt.Fprintln(os.Stderr, "fleetctl service mode: expected \"maintenance\" or \"regular\"")
			return 2
		}
		return submitService(cfg, verb, rest[0], rest[1:])
	case "conf":
		fmt.Fprintln(os.Stderr, "fleetctl service conf: not supported, the settings loader is out of scope")
		return 2
	default:
		fmt.Fprintf(os.Stderr, "fleetctl service: unknown verb %q\n", verb)
		return 2
	}
}

func submitService(cfg *config.Settings, verb, arg string, rest []string) int {
	fs := flag.NewFlagSet("service "+verb, flag.ContinueOnError)
	wait := fs.Int("wait", 600, "seconds to wait for the daemon to process the request (0: default 600)")
	hard := fs.Bool("hard", false, "before the cooperative stop, SIGTERM every supervised process tree and SIGKILL survivors after 4s")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	waitSecs := *wait
	if waitSecs <= 0 {
		waitSecs = 600
	}

	req := controlfile.Request{ID: requestID(), Verb: verb, Arg: arg, Hard: *hard}
	if err := controlfile.Submit(cfg.Directories.RunDir, req); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl: submitting request:", err)
		return 2
	}

	fmt.Fprintf(os.Stderr, "service %s: waiting for fleetsupervisord (up to %ds)...\n", verb, waitSecs)
	res, err := controlfile.Await(cfg.Directories.RunDir, req.ID, time.Duration(waitSecs)*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl:", err)
		return 2
	}
	if !res.OK {
		fmt.Fprintln(os.Stderr, "service "+verb+": FAILED:", res.Message)
		return 1
	}
	fmt.Println("service " + verb + ": OK")
	return 0
}

func requestID() string {
	return fmt.Sprintf("%d-%d", os.Getpid(), rand.Int63())
}

// --- status: self-contained, reads pidfiles and probes directly ---

func runStatus(cfg *config.Settings, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	formatName := fs.String("format", "default", "collectd, nagios, errors-only, silent, or default")
	timeoutSecs := fs.Int("timeout", 10, "per-service probe timeout in seconds")

	var names []string
	var stateOnly bool
	positional := args
	for len(positional) > 0 && !strings.HasPrefix(positional[0], "-") {
		switch positional[0] {
		case "service":
			positional = positional[1:]
			for len(positional) > 0 && !strings.HasPrefix(positional[0], "-") {
				names = append(names, positional[0])
				positional = positional[1:]
			}
		case "state":
			stateOnly = true
			positional = positional[1:]
		default:
			names = append(names, positional[0])
			positional = positional[1:]
		}
	}
	if err := fs.Parse(positional); err != nil {
		return 2
	}

	orch, _, err := buildOrchestrator(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl: building orchestrator:", err)
		return 2
	}

	agg := status.NewAggregator(orch)
	report := agg.Check(context.Background(), status.CheckOptions{
		DoStateChecks:   true,
		DoServiceChecks: !stateOnly,
		Services:        names,
		Timeout:         time.Duration(*timeoutSecs) * time.Second,
	})

	hostname, _ := os.Hostname()
	switch *formatName {
	case "nagios":
		return format.Nagios(os.Stdout, report)
	case "errors-only":
		return format.ErrorsOnly(os.Stdout, hostname, report)
	case "silent":
		return format.Silent(report)
	case "collectd":
		err := format.Collectd(context.Background(), os.Stdout, hostname, time.Duration(*timeoutSecs)*time.Second, func(ctx context.Context) (status.NodeReport, error) {
			return agg.Check(ctx, status.CheckOptions{DoStateChecks: true, DoServiceChecks: !stateOnly, Services: names}), nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "fleetctl status collectd:", err)
			return 2
		}
		return 0
	default:
		return format.Default(os.Stdout, report, isTerminal(os.Stdout))
	}
}

// buildOrchestrator constructs a throwaway Orchestrator wired to the same
// on-disk declarations and pidfiles fleetsupervisord uses, without adding
// anything to a supervisor tree: status only ever reads, never launches.
func buildOrchestrator(cfg *config.Settings) (*orchestrator.Orchestrator, []string, error) {
	store := pidfile.NewStore(logging.NewSlogLogger())
	orch := orchestrator.New(orchestrator.Config{
		LockDir:                cfg.Directories.LockDir,
		DataDir:                cfg.Directories.DataDir,
		TmpDir:                 filepath.Join(cfg.Directories.DataDir, "tmp"),
		StateFilePath:          filepath.Join(cfg.Directories.RunDir, "node_state"),
		DecommissionMarkerPath: filepath.Join(cfg.Directories.DataDir, ".fleetsupervisor-decommissioned"),
		MaxConcurrency:         cfg.Orchestrator.MaxConcurrency,
		PerCallTimeout:         cfg.Orchestrator.VerbTimeout,
	}, store, logging.NewSlogLogger())

	declPath := filepath.Join(cfg.Directories.DataDir, "services.yaml")
	decls, err := config.LoadServiceDeclarations(declPath)
	if err != nil {
		return nil, nil, err
	}

	var registered []string
	for _, decl := range decls {
		classification, err := svcadapter.ParseClassification(decl.Classification)
		if err != nil {
			return nil, nil, err
		}
		adapter := svcadapter.New(decl, nil, store)
		orch.Register(orchestrator.ServiceConfig{
			Name:           decl.Name,
			Classification: classification,
			Hosts:          decl.Hosts,
			PidfilePath:    decl.PidfilePath,
		}, adapter)
		registered = append(registered, decl.Name)
	}
	return orch, registered, nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// --- package: self-contained, drives the versioned installer directly ---

func runPackage(cfg *config.Settings, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "fleetctl package: missing subcommand")
		return 2
	}

	in := installer.New(filepath.Join(cfg.Directories.DataDir, "versions"))
	sub, rest := args[0], args[1:]

	switch sub {
	case "branch":
		return pkgBranch(in, rest)
	case "upgrade":
		return pkgUpgrade(in, rest)
	case "rollback":
		return pkgRollback(in, rest)
	case "delete":
		return pkgDelete(in, rest)
	case "pinning":
		return pkgPinning(in, rest)
	case "versions":
		return pkgVersions(in, rest)
	case "check-version":
		return pkgCheckVersion(in, rest)
	case "add-version":
		return pkgAddVersion(in, rest)
	default:
		fmt.Fprintf(os.Stderr, "fleetctl package: unknown subcommand %q\n", sub)
		return 2
	}
}

func pkgBranch(in *installer.Installer, rest []string) int {
	fs := flag.NewFlagSet("package branch", flag.ContinueOnError)
	force := fs.Bool("force", false, "activate even if the default version is pinned")
	if err := fs.Parse(rest); err != nil || fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "fleetctl package branch: expected a branch name")
		return 2
	}
	branch := fs.Arg(0)
	v, ok := in.DefaultVersion(branch)
	if !ok {
		fmt.Fprintln(os.Stderr, "fleetctl package branch: no default version for branch", branch)
		return 2
	}
	if err := in.Activate(branch, v.String(), true, *force, 0); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl package branch:", err)
		return 1
	}
	fmt.Printf("activated %s/%s\n", branch, v)
	return 0
}

func pkgUpgrade(in *installer.Installer, rest []string) int {
	fs := flag.NewFlagSet("package upgrade", flag.ContinueOnError)
	branch := fs.String("branch", "", "target branch (defaults to the current default branch)")
	version := fs.String("version", "latest", "version to activate, or \"latest\"/\"highest-installed\"")
	downgradeAllowed := fs.Bool("downgrade-allowed", false, "permit activating an older version")
	force := fs.Bool("force", false, "activate even if pinned")
	jitterSecs := fs.Int("jitter", 0, "randomize activation by up to N seconds")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	b := *branch
	if b == "" {
		defaultBranch, ok := in.DefaultBranch()
		if !ok {
			fmt.Fprintln(os.Stderr, "fleetctl package upgrade: no default branch and none given via --branch")
			return 2
		}
		b = defaultBranch
	}

	v := *version
	if v == "latest" || v == "highest-installed" {
		versions, err := in.Versions(b)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fleetctl package upgrade:", err)
			return 2
		}
		if len(versions) == 0 {
			fmt.Fprintln(os.Stderr, "fleetctl package upgrade: no versions installed for branch", b)
			return 1
		}
		v = versions[len(versions)-1].String()
	}

	jitter := time.Duration(*jitterSecs) * time.Second
	if err := in.Activate(b, v, *downgradeAllowed, *force, jitter); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl package upgrade:", err)
		return 1
	}
	fmt.Printf("activated %s/%s\n", b, v)
	return 0
}

func pkgRollback(in *installer.Installer, rest []string) int {
	fs := flag.NewFlagSet("package rollback", flag.ContinueOnError)
	branch := fs.String("branch", "", "branch to roll back (required)")
	if err := fs.Parse(rest); err != nil || fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "fleetctl package rollback: expected a version to roll back from")
		return 2
	}
	if *branch == "" {
		fmt.Fprintln(os.Stderr, "fleetctl package rollback: --branch is required")
		return 2
	}
	if err := in.Rollback(*branch, fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl package rollback:", err)
		return 1
	}
	fmt.Println("rolled back", *branch)
	return 0
}

func pkgDelete(in *installer.Installer, rest []string) int {
	fs := flag.NewFlagSet("package delete", flag.ContinueOnError)
	branch := fs.String("branch", "", "branch the version belongs to (required)")
	if err := fs.Parse(rest); err != nil || fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "fleetctl package delete: expected a version")
		return 2
	}
	if *branch == "" {
		fmt.Fprintln(os.Stderr, "fleetctl package delete: --branch is required")
		return 2
	}
	// Ctrl-C during deletion is held until the delete finishes, then
	// redelivered (spec.md §4.3).
	restoreSig := sigmask.Ignore()
	err := in.Delete(*branch, fs.Arg(0), false)
	if restoreSig() {
		defer sigmask.Reraise()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl package delete:", err)
		return 1
	}
	fmt.Println("deleted", *branch, fs.Arg(0))
	return 0
}

func pkgPinning(in *installer.Installer, rest []string) int {
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "fleetctl package pinning: expected \"on\" or \"off\"")
		return 2
	}
	switch rest[0] {
	case "on":
		reason := strings.Join(rest[1:], " ")
		if err := in.Pin(reason); err != nil {
			fmt.Fprintln(os.Stderr, "fleetctl package pinning:", err)
			return 1
		}
		fmt.Println("pinning enabled")
		return 0
	case "off":
		if err := in.Unpin(); err != nil {
			fmt.Fprintln(os.Stderr, "fleetctl package pinning:", err)
			return 1
		}
		fmt.Println("pinning disabled")
		return 0
	default:
		fmt.Fprintln(os.Stderr, "fleetctl package pinning: expected \"on\" or \"off\"")
		return 2
	}
}

func pkgVersions(in *installer.Installer, _ []string) int {
	branches, err := in.Branches()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl package versions:", err)
		return 2
	}
	for _, branch := range branches {
		versions, err := in.Versions(branch)
		if err != nil {
			fmt.Fprintln(os.Stderr, "fleetctl package versions:", err)
			return 2
		}
		for _, v := range versions {
			fmt.Printf("%s/%s\n", branch, v)
		}
	}
	return 0
}

func pkgCheckVersion(in *installer.Installer, rest []string) int {
	fs := flag.NewFlagSet("package check-version", flag.ContinueOnError)
	version := fs.String("version", "", "version to check (required)")
	branch := fs.String("branch", "", "branch to check (required)")
	silent := fs.Bool("silent", false, "suppress output, exit code only")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	if *version == "" || *branch == "" {
		fmt.Fprintln(os.Stderr, "fleetctl package check-version: --version and --branch are required")
		return 2
	}
	installed, err := in.CheckVersion(*branch, *version)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl package check-version:", err)
		return 2
	}
	if !*silent {
		fmt.Println(installed)
	}
	if installed {
		return 0
	}
	return 1
}

func pkgAddVersion(in *installer.Installer, rest []string) int {
	if len(rest) != 4 {
		fmt.Fprintln(os.Stderr, "fleetctl package add-version: expected DIR SRC BRANCH VERSION")
		return 2
	}
	_, src, branch, version := rest[0], rest[1], rest[2], rest[3]
	if err := in.AddVersion(src, branch, version); err != nil {
		fmt.Fprintln(os.Stderr, "fleetctl package add-version:", err)
		return 1
	}
	fmt.Printf("added %s/%s from %s\n", branch, version, src)
	return 0
}
