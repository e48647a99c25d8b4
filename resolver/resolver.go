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
	"net/netip"
	"sync/atomic"
)

// Family controls which address families a resolution may return, based on
// the family of each resolved address.
type Family int

const (
	// UseBothIPv4AndIPv6 will result in all addresses being used, regardless
	// of their address family.
	UseBothIPv4AndIPv6 Family = iota

	// PreferIPv4 will result in only IPv4 addresses being used, if any IPv4
	// addresses are present. If no IPv4 addresses are resolved, then all
	// addresses will be used.
	PreferIPv4

	// RequireIPv4 will result in only IPv4 addresses being used. If no IPv4
	// addresses are resolved, the result is empty.
	RequireIPv4

	// PreferIPv6 will result in only IPv6 addresses being used, if any IPv6
	// addresses are present. If no IPv6 addresses are resolved, then all
	// addresses will be used.
	PreferIPv6

	// RequireIPv6 will result in only IPv6 addresses being used. If no IPv6
	// addresses are resolved, the result is empty.
	RequireIPv6
)

func (f Family) String() string {
	switch f {
	case UseBothIPv4AndIPv6:
		return "all"
	case PreferIPv4:
		return "prefer-ipv4"
	case RequireIPv4:
		return "require-ipv4"
	case PreferIPv6:
		return "prefer-ipv6"
	case RequireIPv6:
		return "require-ipv6"
	default:
		return "unknown"
	}
}

// Resolver is an interface for asynchronous one-shot name resolution.
type Resolver interface {
	// Resolve looks up hostname and invokes done exactly once with either
	// the resolved addresses or an error. The callback is never invoked
	// synchronously from within Resolve; it runs on a separate goroutine.
	// Resolved addresses carry no port: callers decide the port to pair
	// with them. The order of the returned addresses is resolver-defined
	// and is not re-sorted.
	//
	// Cancelling the returned query before the callback has been delivered
	// suppresses the callback entirely.
	Resolve(hostname string, family Family, done func(addrs []netip.Addr, err error)) Query
}

// Query is the handle for one in-flight resolution.
type Query interface {
	// Cancel abandons the resolution. Once Cancel returns, the callback
	// will not be invoked unless its delivery had already begun, in which
	// case it completes in full.
	Cancel()
}

// ResolveProber is an interface for types that provide single-shot,
// synchronous name resolution. It is the primitive that NewResolver adapts
// to the asynchronous Resolver contract.
type ResolveProber interface {
	// ResolveOnce resolves the given hostname once, returning the addresses
	// permitted by the given family preference.
	ResolveOnce(ctx context.Context, hostname string, family Family) ([]netip.Addr, error)
}

// NewResolver adapts a single-shot prober to the asynchronous Resolver
// contract. Each call to Resolve runs the prober on its own goroutine.
func NewResolver(prober ResolveProber) Resolver {
	return &proberResolver{prober: prober}
}

type proberResolver struct {
	prober ResolveProber
}

func (r *proberResolver) Resolve(hostname string, family Family, done func([]netip.Addr, error)) Query {
	ctx, cancel := context.WithCancel(context.Background())
	query := &proberQuery{cancel: cancel}
	go func() {
		defer cancel()
		addrs, err := r.prober.ResolveOnce(ctx, hostname, family)
		// Whichever of completion and Cancel settles the query first wins;
		// the loser is a no-op. This is what makes cancellation and
		// delivery mutually exclusive.
		if query.settled.CompareAndSwap(false, true) {
			done(addrs, err)
		}
	}()
	return query
}

type proberQuery struct {
	cancel  context.CancelFunc
	settled atomic.Bool
}

func (q *proberQuery) Cancel() {
	if q.settled.CompareAndSwap(false, true) {
		q.cancel()
	}
}

// applyFamily filters addrs per the given family preference and unmaps any
// IPv4-in-IPv6 addresses. Relative order is preserved.
func applyFamily(addrs []netip.Addr, family Family) []netip.Addr {
	filtered := make([]netip.Addr, 0, len(addrs))
	switch family {
	case PreferIPv4, RequireIPv4:
		for _, addr := range addrs {
			if addr.Is4() || addr.Is4In6() {
				filtered = append(filtered, addr)
			}
		}
		if len(filtered) == 0 && family == PreferIPv4 {
			filtered = append(filtered, addrs...)
		}
	case PreferIPv6, RequireIPv6:
		for _, addr := range addrs {
			if addr.Is6() && !addr.Is4In6() {
				filtered = append(filtered, addr)
			}
		}
		if len(filtered) == 0 && family == PreferIPv6 {
			filtered = append(filtered, addrs...)
		}
	case UseBothIPv4AndIPv6:
		filtered = append(filtered, addrs...)
	}
	for i, addr := range filtered {
		// Go's resolver reports IPv4 addresses embedded in IPv6 in some
		// configurations. Normalize so structural equality is meaningful.
		filtered[i] = addr.Unmap()
	}
	return filtered
}
