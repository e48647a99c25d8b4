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
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

// DirectResolverOption is an option used to customize the behavior of a
// direct resolver.
type DirectResolverOption interface {
	applyDirect(*directProber)
}

type directOptionFunc func(*directProber)

func (f directOptionFunc) applyDirect(p *directProber) {
	f(p)
}

// WithExchangeTimeout bounds each individual DNS exchange with the server.
// The default is five seconds.
func WithExchangeTimeout(timeout time.Duration) DirectResolverOption {
	return directOptionFunc(func(p *directProber) {
		p.client.Timeout = timeout
	})
}

// WithNetwork sets the transport used to reach the server, "udp" or "tcp".
// The default is "udp".
func WithNetwork(network string) DirectResolverOption {
	return directOptionFunc(func(p *directProber) {
		p.client.Net = network
	})
}

// NewDirectResolver creates a resolver that queries the DNS server at the
// given "host:port" address directly, bypassing the system resolver. A and
// AAAA records are queried in parallel as the family preference requires;
// when both are queried, A results are reported before AAAA results, each
// group in the order the server returned it.
func NewDirectResolver(server string, opts ...DirectResolverOption) Resolver {
	prober := &directProber{
		server: server,
		client: &dns.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt.applyDirect(prober)
	}
	return NewResolver(prober)
}

type directProber struct {
	server string
	client *dns.Client
}

func (p *directProber) ResolveOnce(ctx context.Context, hostname string, family Family) ([]netip.Addr, error) {
	fqdn := dns.Fqdn(hostname)
	var ip4, ip6 []netip.Addr
	group, ctx := errgroup.WithContext(ctx)
	if family != RequireIPv6 {
		group.Go(func() error {
			var err error
			ip4, err = p.exchange(ctx, fqdn, dns.TypeA)
			return err
		})
	}
	if family != RequireIPv4 {
		group.Go(func() error {
			var err error
			ip6, err = p.exchange(ctx, fqdn, dns.TypeAAAA)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return applyFamily(append(ip4, ip6...), family), nil
}

func (p *directProber) exchange(ctx context.Context, fqdn string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	response, _, err := p.client.ExchangeContext(ctx, msg, p.server)
	if err != nil {
		return nil, err
	}
	if response.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns query for %s %s: %s", fqdn, dns.TypeToString[qtype], dns.RcodeToString[response.Rcode])
	}
	var addrs []netip.Addr
	for _, answer := range response.Answer {
		switch record := answer.(type) {
		case *dns.A:
			if addr, ok := netip.AddrFromSlice(record.A.To4()); ok {
				addrs = append(addrs, addr)
			}
		case *dns.AAAA:
			if addr, ok := netip.AddrFromSlice(record.AAAA.To16()); ok {
				addrs = append(addrs, addr)
			}
		}
	}
	return addrs, nil
}
