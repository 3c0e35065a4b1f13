// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

// Package format renders a status.NodeReport in one of the output formats
// listed in spec.md §6: default, nagios, collectd, errors-only, silent.
package format

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tomtom215/fleetsupervisor/internal/status"
)

func sortedServiceNames(m map[string]status.Struct) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const ansiRed = "\033[0;31m"
const ansiBrightRed = "\033[1;31m"
const ansiReset = "\033[0m"

func colorFor(st status.State) string {
	switch st {
	case status.StateWarn, status.StateStopped:
		return ansiRed
	case status.StateError, status.StateUnknown:
		return ansiBrightRed
	default:
		return ""
	}
}

// Default renders the human-readable table format and returns the plain
// process exit code (0 for OK/WARN, 1 otherwise).
func Default(w io.Writer, r status.NodeReport, colorSupported bool) int {
	width := 10
	for name := range r.Services {
		if len(name)+1 > width {
			width = len(name) + 1
		}
	}

	for _, name := range sortedServiceNames(r.Services) {
		svc := r.Services[name]
		line := fmt.Sprintf("%*s:%9s  %s", width, name, svc.State.String(), svc.FirstLine())
		if colorSupported {
			if c := colorFor(svc.State); c != "" {
				line = c + line + ansiReset
			}
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "%*s: %s\n", width, "State", r.Message)
	fmt.Fprintf(w, "%*s: %s as of %s\n", width, "Status", r.State.String(),
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	return r.State.ExitCode()
}

// Silent returns only the exit code; it writes nothing.
func Silent(r status.NodeReport) int {
	return r.State.ExitCode()
}

// ErrorsOnly prints a single hostname-prefixed line when the node is in an
// error-like state, and writes nothing (with a zero exit code) otherwise.
func ErrorsOnly(w io.Writer, hostname string, r status.NodeReport) int {
	inError := false
	switch r.State {
	case status.StateError, status.StateUnknown, status.StateDecommissioned:
		inError = true
	case status.StateStopped:
		if len(r.EnabledServices) > 0 {
			inError = true
		}
	}
	if !inError {
		return 0
	}
	fmt.Fprintf(w, "%s: %s\n", hostname, r.Message)
	return 1
}

// Nagios renders the single-line "<message>|<data...>" nagios plugin
// format and returns its exit code mapping.
func Nagios(w io.Writer, r status.NodeReport) int {
	message := stripHints(r.Message)
	var data []string
	for _, name := range sortedServiceNames(r.Services) {
		svc := r.Services[name]
		for _, pointName := range sortedDataPointNames(svc.Data) {
			data = append(data, nagiosValue(name+"_"+pointName, svc.Data[pointName]))
		}
	}

	fmt.Fprint(w, message)
	if len(data) > 0 {
		fmt.Fprint(w, " |"+strings.Join(data, " "))
	}
	fmt.Fprintln(w)
	return r.State.NagiosExitCode()
}

func sortedDataPointNames(m map[string]status.DataPoint) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// stripHints removes bracketed operator hints like "[try 'fleetctl foo
// start']" from a message before nagios output, matching the source.
func stripHints(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func nagiosValue(key string, d status.DataPoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%v%s", key, d.Value, d.Unit.NagiosSuffix())

	if d.Warn == nil && d.Error == nil && d.Min == nil && d.Max == nil {
		return b.String()
	}
	b.WriteString(";")
	if d.Warn != nil {
		fmt.Fprintf(&b, "%v", *d.Warn)
	}
	if d.Error == nil && d.Min == nil && d.Max == nil {
		return b.String()
	}
	b.WriteString(";")
	if d.Error != nil {
		fmt.Fprintf(&b, "%v", *d.Error)
	}
	if d.Min == nil && d.Max == nil {
		return b.String()
	}
	b.WriteString(";")
	if d.Min != nil {
		fmt.Fprintf(&b, "%v", *d.Min)
	}
	if d.Max == nil {
		return b.String()
	}
	b.WriteString(";")
	fmt.Fprintf(&b, "%v", *d.Max)
	return b.String()
}

// Collectd runs check repeatedly at interval, emitting PUTVAL lines for
// every data point on every service, until check reports zero services
// (the node has stopped) or ctx is canceled, per spec.md §6.
func Collectd(ctx context.Context, w io.Writer, hostname string, interval time.Duration, check func(context.Context) (status.NodeReport, error)) error {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}

	for {
		start := time.Now()
		report, err := check(ctx)
		if err != nil {
			return err
		}
		if len(report.Services) == 0 {
			return nil
		}

		for _, name := range sortedServiceNames(report.Services) {
			svc := report.Services[name]
			for _, pointName := range sortedDataPointNames(svc.Data) {
				d := svc.Data[pointName]
				group := d.Group
				if group == "" {
					group = name
				}
				statName := d.StatName
				if statName == "" {
					statName = d.Name
				}
				fmt.Fprintf(w, "PUTVAL %q/%s/%s interval=%d %d:%v\n",
					truncate(hostname, 62), truncate(group, 62), truncate(collectdStatName(d.Unit, statName), 62),
					int(interval.Seconds()), start.Unix(), d.Value)
			}
		}

		sleepFor := interval - time.Since(start)
		if sleepFor < 2*time.Second {
			sleepFor = 2 * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
	}
}

func collectdStatName(u status.Unit, name string) string {
	cn := u.CollectdName()
	if cn != "" && cn != name {
		return cn + "-" + name
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
