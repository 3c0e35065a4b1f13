// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package orchestrator

import (
	"net"
	"sort"
)

// localIPs returns every non-loopback IP address bound to this host.
// A resolution failure yields an empty set rather than an error, since the
// orchestrator falls back to single-node-mode semantics in that case.
func localIPs() map[string]struct{} {
	out := map[string]struct{}{}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		out[ip.String()] = struct{}{}
	}
	return out
}

// singleNodeMode reports whether no registered service anywhere lists a
// non-loopback host, per spec: "127.0.0.1 hostnames count only in
// single-node mode."
func (o *Orchestrator) singleNodeMode() bool {
	for _, rs := range o.services {
		for _, h := range rs.config.Hosts {
			if h != "" && h != "127.0.0.1" && h != "localhost" {
				return false
			}
		}
	}
	return true
}

func (o *Orchestrator) hostMatchesLocal(host string) bool {
	if host == "127.0.0.1" || host == "localhost" {
		return o.singleNodeMode()
	}
	_, ok := o.localAddrs[host]
	return ok
}

// enabledOnThisNode decides whether cfg should run here.
func (o *Orchestrator) enabledOnThisNode(cfg ServiceConfig) bool {
	switch cfg.Classification {
	case ClassificationOn:
		return true
	case ClassificationOff:
		return false
	case ClassificationDefault:
		if len(cfg.Hosts) == 0 {
			return o.singleNodeMode()
		}
		for _, h := range cfg.Hosts {
			if o.hostMatchesLocal(h) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// EnabledSet returns the sorted names of services declared for this node.
func (o *Orchestrator) EnabledSet() []string {
	var out []string
	for name, rs := range o.services {
		if o.enabledOnThisNode(rs.config) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// RunningSet returns the sorted names of services whose pidfile currently
// names a live pid.
func (o *Orchestrator) RunningSet() []string {
	var out []string
	for name, rs := range o.services {
		if o.isRunning(rs) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) isRunning(rs *registeredService) bool {
	if rs.config.PidfilePath == "" {
		return false
	}
	rec, err := o.pidfiles.Read(rs.config.PidfilePath)
	if err != nil {
		return false
	}
	return rec.HasPid()
}

// RunningNotEnabled returns Running \ Enabled.
func (o *Orchestrator) RunningNotEnabled() []string {
	return difference(o.RunningSet(), o.EnabledSet())
}

// EnabledNotRunning returns Enabled \ Running.
func (o *Orchestrator) EnabledNotRunning() []string {
	return difference(o.EnabledSet(), o.RunningSet())
}

func difference(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, v := range b {
		inB[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := inB[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
