// Copyright 2024-2025 Proxium, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logicaldns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/proxium/logicaldns/dispatch"
)

// ErrNoResolvedAddress is returned by CreateConnection when the calling
// worker has not yet received any resolved address. The surrounding
// lifecycle is expected to hold back connection creation until the cluster
// has initialized, so hitting this is a contract violation by the caller.
var ErrNoResolvedAddress = errors.New("logicaldns: no resolved address available on this worker")

// LogicalHost is the stable identity of the cluster's upstream target. It
// is created on the first successful resolution and is never replaced for
// the lifetime of the cluster, no matter how often the underlying address
// changes. It is shared by reference with load balancing, health checking
// and connection descriptions.
type LogicalHost struct {
	cluster  *Cluster
	hostname string

	// address is a wildcard placeholder in the family of the first
	// resolved address. It identifies the host for logging and stats; it
	// is never dialed.
	address netip.Addr

	healthCheck atomic.Pointer[netip.AddrPort]
}

func newLogicalHost(cluster *Cluster, hostname string, address netip.Addr) *LogicalHost {
	return &LogicalHost{
		cluster:  cluster,
		hostname: hostname,
		address:  address,
	}
}

// Hostname returns the configured name this host resolves.
func (h *LogicalHost) Hostname() string {
	return h.hostname
}

// Address returns the host's wildcard identity address.
func (h *LogicalHost) Address() netip.Addr {
	return h.address
}

// HealthCheckAddress returns the address active health checking should
// probe. It tracks the cluster's canonical address. The zero AddrPort is
// returned if no address has been resolved yet.
func (h *LogicalHost) HealthCheckAddress() netip.AddrPort {
	if addr := h.healthCheck.Load(); addr != nil {
		return *addr
	}
	return netip.AddrPort{}
}

// setHealthCheckAddress is called only by the cluster's control loop, on
// material address changes. In-progress health checks are unaffected.
func (h *LogicalHost) setHealthCheckAddress(addr netip.AddrPort) {
	h.healthCheck.Store(&addr)
}

// HostDescription describes the concrete endpoint used for a single
// connection attempt. It is a per-call snapshot: the cluster never mutates
// it after CreateConnection returns.
type HostDescription struct {
	Hostname string
	Address  netip.AddrPort
	Host     *LogicalHost
}

// CreateConnection dials the worker's current view of the upstream address
// and returns the connection together with a description of the endpoint
// actually used. It must be called from code running on the given worker's
// loop; the address read is that worker's private cache and involves no
// locking. In-flight address changes do not affect connections already
// being established.
func (h *LogicalHost) CreateConnection(ctx context.Context, worker *dispatch.Loop) (net.Conn, *HostDescription, error) {
	cell := h.cluster.cellFor(worker)
	if cell == nil {
		return nil, nil, fmt.Errorf("logicaldns: loop is not a registered worker of cluster %q", h.cluster.name)
	}
	addr := cell.current
	if !addr.IsValid() {
		return nil, nil, ErrNoResolvedAddress
	}
	conn, err := h.cluster.dialFunc(ctx, "tcp", addr.String())
	if err != nil {
		return nil, nil, err
	}
	return conn, &HostDescription{
		Hostname: h.hostname,
		Address:  addr,
		Host:     h,
	}, nil
}
