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
	"net"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-metrics"
)

//nolint:gochecknoglobals
var defaultDialer = &net.Dialer{
	Timeout:   30 * time.Second,
	KeepAlive: 30 * time.Second,
}

// Option is an option used to customize the behavior of a cluster.
type Option interface {
	apply(*clusterOptions)
}

type optionFunc func(*clusterOptions)

func (f optionFunc) apply(opts *clusterOptions) {
	f(opts)
}

type clusterOptions struct {
	logger    hclog.Logger
	metrics   *metrics.Metrics
	lifecycle Lifecycle
	dialFunc  func(ctx context.Context, network, addr string) (net.Conn, error)
}

func defaultClusterOptions() clusterOptions {
	return clusterOptions{
		logger:    hclog.NewNullLogger(),
		lifecycle: nopLifecycle{},
		dialFunc:  defaultDialer.DialContext,
	}
}

// WithLogger configures the logger used by the cluster. If no WithLogger
// option is provided, the cluster does not log.
func WithLogger(logger hclog.Logger) Option {
	return optionFunc(func(opts *clusterOptions) {
		opts.logger = logger
	})
}

// WithMetrics configures the sink for the cluster's counters. If no
// WithMetrics option is provided, the process-global metrics sink is used.
func WithMetrics(m *metrics.Metrics) Option {
	return optionFunc(func(opts *clusterOptions) {
		opts.metrics = m
	})
}

// WithLifecycle configures the receiver for lifecycle notifications,
// normally the component that feeds load balancing and health checking.
// If no WithLifecycle option is provided, notifications are discarded.
func WithLifecycle(lifecycle Lifecycle) Option {
	return optionFunc(func(opts *clusterOptions) {
		opts.lifecycle = lifecycle
	})
}

// WithDialer configures the cluster to use the given function to establish
// network connections. If no WithDialer option is provided, a default
// [net.Dialer] is used that uses a 30-second dial timeout and configures
// the connection to use TCP keep-alive every 30 seconds.
func WithDialer(dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return optionFunc(func(opts *clusterOptions) {
		opts.dialFunc = dialFunc
	})
}

// Lifecycle receives cluster lifecycle notifications. Notifications are
// delivered on the cluster's control loop, so implementations must not
// block; forward to another execution context if the handling is slow.
type Lifecycle interface {
	// OnInitialized is called after the first resolution attempt completes,
	// whether or not it succeeded. It is called at most once per cluster.
	OnInitialized()

	// OnHostSetChanged is called each time the cluster's resolved address
	// materially changes, including the first time one is known. The host
	// carried is the same object for the lifetime of the cluster; load
	// balancing should register it on first sight.
	OnHostSetChanged(host *LogicalHost)
}

type nopLifecycle struct{}

func (nopLifecycle) OnInitialized() {}

func (nopLifecycle) OnHostSetChanged(*LogicalHost) {}
