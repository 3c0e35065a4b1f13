// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

/*
Package status builds per-service StatusStructs and merges them into a
node-wide roll-up, per spec.md §4.8.

# Merge order

Multiple service states fold into one node state by severity, most
important first: DECOMMISSIONED > UNKNOWN > ERROR > STOPPED > STARTING or
STOPPING > WARN > RUNNING_OK. MergeState, which Struct.Update and
Struct.Merge use, additionally lets STARTING/STOPPING win regardless of
rank, since a service mid-transition masks whatever state it was leaving;
the Aggregator's node roll-up follows the rank strictly.

# Resource checks

ResourceChecker samples load, memory, and disk via
github.com/shirou/gopsutil/v4. The load check applies a sticky
short-spike-grace: a crossing of the warn threshold under SpikeGrace stays
OK; only a sustained crossing becomes WARN, tracked via internal/statuscache
so the grace period survives across separate processes. Disk and inode
checks apply flat warn/error thresholds. The Aggregator does not run
ResourceChecker or CheckPeers, and no command in this tree calls them.

# Network checks

CheckHost pings one peer via golang.org/x/net/icmp with an explicit address
family (Peer.Network), per the redesign note resolving spec.md §9's
IPv6-ambiguity open question. CheckPeers pings each known peer in turn
and reports a success count.

Output formatting (default/nagios/collectd/errors-only/silent) lives in the
sibling package internal/status/format.
*/
package status
