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
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-metrics"
	"github.com/proxium/logicaldns/dispatch"
	"github.com/proxium/logicaldns/internal"
	"github.com/proxium/logicaldns/resolver"
)

type clusterState int

const (
	stateIdle clusterState = iota
	stateResolving
	stateShuttingDown
)

func (s clusterState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateResolving:
		return "resolving"
	case stateShuttingDown:
		return "shutting-down"
	default:
		return fmt.Sprintf("clusterState(%d)", int(s))
	}
}

// hostCell is one worker's private view of the current resolved address.
// It is written only by assignments posted to the owner loop and read only
// by code running on that loop, so no synchronization is needed.
type hostCell struct {
	current netip.AddrPort
}

// Cluster maintains a single logical upstream target whose address is
// re-resolved periodically. All canonical state lives on the cluster's own
// control loop; workers only ever see complete addresses published into
// their private cells.
type Cluster struct {
	name            string
	hostname        string
	port            uint16
	family          resolver.Family
	refreshInterval time.Duration

	resolver  resolver.Resolver
	logger    hclog.Logger
	metrics   *metrics.Metrics
	lifecycle Lifecycle
	dialFunc  func(ctx context.Context, network, addr string) (net.Conn, error)

	loop  *dispatch.Loop
	clock internal.Clock

	// cells is built in New and never modified afterwards, so reading the
	// map itself is safe from any goroutine.
	workers []*dispatch.Loop
	cells   map[*dispatch.Loop]*hostCell

	// The fields below are owned by the control loop.
	state       clusterState
	current     netip.AddrPort
	inFlight    resolver.Query
	timer       *dispatch.Timer
	host        *LogicalHost
	initialized bool
	started     bool

	// NB: only set from tests
	broadcastHook   func(netip.AddrPort)
	healthCheckHook func(netip.AddrPort)

	closeOnce sync.Once
}

// New creates a cluster for the single target in cfg, resolving it with
// res and publishing resolved addresses to the given worker loops. The
// worker set is fixed for the cluster's lifetime. The cluster does not
// resolve anything until Start is called.
func New(cfg Config, res resolver.Resolver, workers []*dispatch.Loop, opts ...Option) (*Cluster, error) {
	target, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	options := defaultClusterOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = defaultRefreshInterval
	}
	cluster := &Cluster{
		name:            cfg.Name,
		hostname:        target.Host,
		port:            target.Port,
		family:          cfg.Family,
		refreshInterval: refresh,
		resolver:        res,
		logger:          options.logger.With("cluster", cfg.Name),
		metrics:         options.metrics,
		lifecycle:       options.lifecycle,
		dialFunc:        options.dialFunc,
		loop:            dispatch.NewLoop(),
		clock:           internal.NewRealClock(),
		workers:         workers,
		cells:           make(map[*dispatch.Loop]*hostCell, len(workers)),
	}
	for _, worker := range workers {
		cluster.cells[worker] = &hostCell{}
	}
	return cluster, nil
}

// Start issues the first resolution. Calling it more than once is a no-op.
func (c *Cluster) Start() {
	c.loop.Post(func() {
		if c.started || c.state == stateShuttingDown {
			return
		}
		c.started = true
		c.timer = dispatch.NewTimer(c.loop, c.clock, c.startResolve)
		c.startResolve()
	})
}

// Close cancels any in-flight resolution, disarms the refresh timer and
// stops the control loop. After Close returns, no further state changes,
// broadcasts or lifecycle notifications occur. Safe to call more than once.
func (c *Cluster) Close() error {
	c.closeOnce.Do(func() {
		c.loop.Do(c.shutdown)
	})
	return c.loop.Close()
}

func (c *Cluster) shutdown() {
	c.state = stateShuttingDown
	if c.inFlight != nil {
		c.inFlight.Cancel()
		c.inFlight = nil
	}
	if c.timer != nil {
		c.timer.Disable()
	}
}

func (c *Cluster) startResolve() {
	if c.state != stateIdle {
		panic(fmt.Sprintf("logicaldns: resolution started in state %v", c.state))
	}
	c.state = stateResolving
	c.incrCounter("resolution_attempt")
	c.logger.Debug("starting async DNS resolution", "host", c.hostname)
	began := c.clock.Now()
	var query resolver.Query
	query = c.resolver.Resolve(c.hostname, c.family, func(addrs []netip.Addr, err error) {
		// Runs on the resolver's goroutine; hop back onto the control loop.
		c.loop.Post(func() {
			c.onResolveDone(query, began, addrs, err)
		})
	})
	c.inFlight = query
}

func (c *Cluster) onResolveDone(query resolver.Query, began time.Time, addrs []netip.Addr, err error) {
	if c.state == stateShuttingDown || query != c.inFlight {
		// Completion from a cancelled or superseded query. Resolvers that
		// honor Cancel never get here; this catches the ones that don't.
		c.logger.Debug("dropping stale DNS resolution result", "host", c.hostname)
		return
	}
	if c.state != stateResolving {
		panic(fmt.Sprintf("logicaldns: resolution completed in state %v", c.state))
	}
	c.inFlight = nil

	if err != nil {
		c.incrCounter("resolution_failure")
		c.logger.Warn("async DNS resolution failed", "host", c.hostname, "error", err)
	} else {
		c.incrCounter("resolution_success")
		c.logger.Debug("async DNS resolution complete", "host", c.hostname, "duration", c.clock.Since(began))
		if len(addrs) > 0 {
			// First address wins; the order is resolver-defined and is
			// deliberately not re-sorted.
			newAddr := netip.AddrPortFrom(addrs[0].Unmap(), c.port)
			if c.host == nil {
				c.host = newLogicalHost(c, c.hostname, wildcardFor(newAddr.Addr()))
			}
			if c.current != newAddr {
				c.current = newAddr
				c.host.setHealthCheckAddress(newAddr)
				if c.healthCheckHook != nil {
					c.healthCheckHook(newAddr)
				}
				c.broadcast(newAddr)
				c.lifecycle.OnHostSetChanged(c.host)
			}
		}
	}

	c.completeInit()
	c.state = stateIdle
	c.timer.Enable(c.refreshInterval)
}

func (c *Cluster) completeInit() {
	if c.initialized {
		return
	}
	c.initialized = true
	c.lifecycle.OnInitialized()
}

// broadcast publishes addr into every worker's cell via that worker's own
// loop, so each write is ordered with the reads on that worker.
func (c *Cluster) broadcast(addr netip.AddrPort) {
	if c.broadcastHook != nil {
		c.broadcastHook(addr)
	}
	for _, worker := range c.workers {
		cell := c.cells[worker]
		worker.Post(func() {
			cell.current = addr
		})
	}
}

func (c *Cluster) cellFor(worker *dispatch.Loop) *hostCell {
	return c.cells[worker]
}

func (c *Cluster) incrCounter(name string) {
	key := []string{"logicaldns", name}
	labels := []metrics.Label{{Name: "cluster", Value: c.name}}
	if c.metrics != nil {
		c.metrics.IncrCounterWithLabels(key, 1, labels)
	} else {
		metrics.IncrCounterWithLabels(key, 1, labels)
	}
}

func wildcardFor(addr netip.Addr) netip.Addr {
	if addr.Is4() {
		return netip.IPv4Unspecified()
	}
	return netip.IPv6Unspecified()
}
