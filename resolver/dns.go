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

package resolver

import (
	"context"
	"net"
	"net/netip"
)

// NewDNSResolver creates a resolver backed by the given [net.Resolver],
// typically [net.DefaultResolver]. Lookups go through the system's
// configured name resolution.
func NewDNSResolver(resolver *net.Resolver) Resolver {
	return NewResolver(&dnsResolveProber{resolver: resolver})
}

type dnsResolveProber struct {
	resolver *net.Resolver
}

func (p *dnsResolveProber) ResolveOnce(ctx context.Context, hostname string, family Family) ([]netip.Addr, error) {
	addrs, err := p.resolver.LookupNetIP(ctx, family.network(), hostname)
	if err != nil {
		return nil, err
	}
	return applyFamily(addrs, family), nil
}

// network maps a family preference to the network argument of
// [net.Resolver.LookupNetIP]. Only the Require policies can narrow the
// lookup itself; the Prefer policies need the full result set so the
// filter can fall back when one family is absent.
func (f Family) network() string {
	switch f {
	case RequireIPv4:
		return "ip4"
	case RequireIPv6:
		return "ip6"
	default:
		return "ip"
	}
}
