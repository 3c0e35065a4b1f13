// fleetsupervisor - node-local service supervisor and versioned deployment controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetsupervisor

package status

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/tomtom215/fleetsupervisor/internal/ferrors"
	"github.com/tomtom215/fleetsupervisor/internal/metrics"
)

const (
	protocolICMP   = 1
	protocolICMPv6 = 58
)

// Peer is one known host the network check pings. Network is an explicit
// address family ("ip4" or "ip6"), per the redesign note in spec.md §9
// resolving the source's undocumented IPv6 behaviour.
type Peer struct {
	Name    string
	Address string
	Network string
}

// CheckHost sends a single ICMP echo request to peer and waits for the
// reply, honoring ctx's deadline (or timeout, if ctx carries none).
func CheckHost(ctx context.Context, peer Peer, timeout time.Duration) error {
	netw := peer.Network
	if netw == "" {
		netw = "ip4"
	}

	var listenNetwork, listenAddr string
	var proto int
	var msgType icmp.Type
	switch netw {
	case "ip4":
		listenNetwork, listenAddr, proto, msgType = "ip4:icmp", "0.0.0.0", protocolICMP, ipv4.ICMPTypeEcho
	case "ip6":
		listenNetwork, listenAddr, proto, msgType = "ip6:ipv6-icmp", "::", protocolICMPv6, ipv6.ICMPTypeEchoRequest
	default:
		return ferrors.New(ferrors.KindInvalidArgument, "status.check_host", "unknown address family "+netw)
	}

	conn, err := icmp.ListenPacket(listenNetwork, listenAddr)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "status.check_host", "opening icmp socket", err)
	}
	defer conn.Close()

	dst, err := net.ResolveIPAddr(netw, peer.Address)
	if err != nil {
		return ferrors.Wrap(ferrors.KindInvalidArgument, "status.check_host", "resolving "+peer.Address, err)
	}

	msg := icmp.Message{
		Type: msgType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("fleetsupervisor-check"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "status.check_host", "marshaling echo request", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "status.check_host", "setting deadline", err)
	}

	if _, err := conn.WriteTo(wb, dst); err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "status.check_host", "sending echo request", err)
	}

	rb := make([]byte, 1500)
	n, _, err := conn.ReadFrom(rb)
	if err != nil {
		return ferrors.Wrap(ferrors.KindTimeout, "status.check_host", "waiting for echo reply", err)
	}

	rm, err := icmp.ParseMessage(proto, rb[:n])
	if err != nil {
		return ferrors.Wrap(ferrors.KindFilesystem, "status.check_host", "parsing icmp reply", err)
	}

	switch rm.Type {
	case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
		return nil
	default:
		return ferrors.New(ferrors.KindChildFailure, "status.check_host",
			fmt.Sprintf("unexpected icmp reply type %v from %s", rm.Type, peer.Address))
	}
}

// CheckPeers pings every peer (serially; the peer list is expected to be
// small) and reports a success-count data point per spec.md §4.8.
func CheckPeers(ctx context.Context, peers []Peer, timeout time.Duration) Struct {
	s := NewStruct("", StateRunningOK)
	ok := 0
	var failed []string
	for _, p := range peers {
		err := CheckHost(ctx, p, timeout)
		result := "ok"
		if err != nil {
			result = "fail"
			failed = append(failed, p.Name)
		} else {
			ok++
		}
		metrics.NetworkCheckSuccess.WithLabelValues(p.Name, result).Inc()
	}
	s.AddDataPoint(DataPoint{Name: "peer_checks_ok", Value: float64(ok), Unit: UnitCounter})
	s.AddDataPoint(DataPoint{Name: "peer_checks_total", Value: float64(len(peers)), Unit: UnitCounter})
	if len(failed) > 0 {
		warnState := StateWarn
		s.Update(fmt.Sprintf("network check failed for peers: %v", failed), &warnState)
	}
	return s
}
