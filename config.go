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
	"fmt"
	"time"

	"github.com/proxium/logicaldns/resolver"
)

const defaultRefreshInterval = 5000 * time.Millisecond

// Target is one upstream endpoint in a cluster's configuration.
type Target struct {
	// Host is the name to resolve. It may also be an IP literal, in which
	// case resolution is trivial but still periodic.
	Host string

	// Port is paired with every resolved address.
	Port uint16

	// ResolverName optionally requests a non-default resolution service.
	// Logical DNS clusters do not support one; construction fails if set.
	ResolverName string
}

// Config describes a logical DNS cluster.
type Config struct {
	// Name identifies the cluster in logs and metrics. It is also the
	// stable identity reported for its host, independent of the addresses
	// the host resolves to over time.
	Name string

	// Targets must contain exactly one entry.
	Targets []Target

	// RefreshInterval is the delay between one resolution completing and
	// the next one starting. Defaults to 5000ms.
	RefreshInterval time.Duration

	// Family restricts which address families the resolver may return.
	Family resolver.Family
}

func (c *Config) validate() (Target, error) {
	if len(c.Targets) != 1 {
		return Target{}, fmt.Errorf("logical DNS cluster %q must have exactly one target, got %d", c.Name, len(c.Targets))
	}
	target := c.Targets[0]
	if target.Host == "" {
		return Target{}, fmt.Errorf("logical DNS cluster %q has a target with an empty host", c.Name)
	}
	if target.ResolverName != "" {
		return Target{}, fmt.Errorf("logical DNS cluster %q must not set a custom resolver name (got %q)", c.Name, target.ResolverName)
	}
	return target, nil
}
