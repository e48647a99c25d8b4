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
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"
)

type resolveProberFunc func(ctx context.Context, hostname string, family Family) ([]netip.Addr, error)

func (f resolveProberFunc) ResolveOnce(ctx context.Context, hostname string, family Family) ([]netip.Addr, error) {
	return f(ctx, hostname, family)
}

func resolveSync(t *testing.T, res Resolver, hostname string, family Family) ([]netip.Addr, error) {
	t.Helper()
	type outcome struct {
		addrs []netip.Addr
		err   error
	}
	results := make(chan outcome, 1)
	res.Resolve(hostname, family, func(addrs []netip.Addr, err error) {
		results <- outcome{addrs, err}
	})
	select {
	case result := <-results:
		return result.addrs, result.err
	case <-time.After(5 * time.Second):
		t.Fatal("resolution did not complete")
		return nil, nil
	}
}

func TestResolverDeliversExactlyOnce(t *testing.T) {
	t.Parallel()
	want := []netip.Addr{netip.MustParseAddr("10.0.0.1")}
	res := NewResolver(resolveProberFunc(func(context.Context, string, Family) ([]netip.Addr, error) {
		return want, nil
	}))

	var calls atomic.Int32
	delivered := make(chan struct{}, 1)
	res.Resolve("svc.internal", UseBothIPv4AndIPv6, func(addrs []netip.Addr, err error) {
		calls.Add(1)
		assert.NoError(t, err)
		assert.Equal(t, want, addrs)
		delivered <- struct{}{}
	})
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected the callback to be delivered")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResolverCallbackIsNotSynchronous(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	res := NewResolver(resolveProberFunc(func(context.Context, string, Family) ([]netip.Addr, error) {
		<-release
		return nil, nil
	}))

	delivered := make(chan struct{})
	res.Resolve("svc.internal", UseBothIPv4AndIPv6, func([]netip.Addr, error) {
		close(delivered)
	})
	// Resolve returned while the prober is still blocked, so the callback
	// cannot have been invoked from within it.
	select {
	case <-delivered:
		t.Fatal("callback delivered before the prober completed")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected the callback to be delivered")
	}
}

func TestCancelSuppressesCallback(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	res := NewResolver(resolveProberFunc(func(ctx context.Context, _ string, _ Family) ([]netip.Addr, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	query := res.Resolve("svc.internal", UseBothIPv4AndIPv6, func([]netip.Addr, error) {
		t.Error("callback invoked after Cancel")
	})
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("prober never started")
	}
	query.Cancel()
	// Give the unblocked prober goroutine time to (incorrectly) deliver.
	time.Sleep(100 * time.Millisecond)
}

func TestCancelAfterDeliveryIsHarmless(t *testing.T) {
	t.Parallel()
	res := NewResolver(resolveProberFunc(func(context.Context, string, Family) ([]netip.Addr, error) {
		return nil, errors.New("no such host")
	}))

	delivered := make(chan struct{}, 1)
	query := res.Resolve("svc.internal", UseBothIPv4AndIPv6, func(_ []netip.Addr, err error) {
		assert.Error(t, err)
		delivered <- struct{}{}
	})
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected the callback to be delivered")
	}
	query.Cancel()
}

func TestApplyFamily(t *testing.T) {
	t.Parallel()
	ip4a := netip.MustParseAddr("10.0.0.100")
	ip4b := netip.MustParseAddr("10.0.0.101")
	ip6a := netip.MustParseAddr("fe80::1")
	ip6b := netip.MustParseAddr("fe80::2")
	mapped := netip.MustParseAddr("::ffff:10.0.0.102")
	unmapped := netip.MustParseAddr("10.0.0.102")
	mixed := []netip.Addr{ip4a, ip6a, ip4b, ip6b, mapped}

	testCases := []struct {
		name   string
		input  []netip.Addr
		family Family
		want   []netip.Addr
	}{
		{"both keeps all", mixed, UseBothIPv4AndIPv6, []netip.Addr{ip4a, ip6a, ip4b, ip6b, unmapped}},
		{"prefer v4 keeps v4", mixed, PreferIPv4, []netip.Addr{ip4a, ip4b, unmapped}},
		{"require v4 keeps v4", mixed, RequireIPv4, []netip.Addr{ip4a, ip4b, unmapped}},
		{"prefer v6 keeps v6", mixed, PreferIPv6, []netip.Addr{ip6a, ip6b}},
		{"require v6 keeps v6", mixed, RequireIPv6, []netip.Addr{ip6a, ip6b}},
		{"prefer v4 falls back", []netip.Addr{ip6a, ip6b}, PreferIPv4, []netip.Addr{ip6a, ip6b}},
		{"require v4 goes empty", []netip.Addr{ip6a, ip6b}, RequireIPv4, []netip.Addr{}},
		{"prefer v6 falls back", []netip.Addr{ip4a, mapped}, PreferIPv6, []netip.Addr{ip4a, unmapped}},
		{"require v6 goes empty", []netip.Addr{ip4a, mapped}, RequireIPv6, []netip.Addr{}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			got := applyFamily(testCase.input, testCase.family)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestDNSResolverFamilyPolicy(t *testing.T) {
	t.Parallel()

	ip4Header := dnsmessage.ResourceHeader{
		Name:  dnsmessage.MustNewName("example.com."),
		Type:  dnsmessage.TypeA,
		Class: dnsmessage.ClassINET,
	}
	ip6Header := dnsmessage.ResourceHeader{
		Name:  dnsmessage.MustNewName("example.com."),
		Type:  dnsmessage.TypeAAAA,
		Class: dnsmessage.ClassINET,
	}
	ip4Address1 := net.ParseIP("10.0.0.100")
	ip4Address2 := net.ParseIP("10.0.0.101")
	ip6Address1 := net.ParseIP("fe80::1")
	ip6Address2 := net.ParseIP("fe80::2")

	mixed := newFakeDNSServer(t, []dnsmessage.Resource{
		{Header: ip4Header, Body: &dnsmessage.AResource{A: [4]byte(ip4Address1.To4())}},
		{Header: ip6Header, Body: &dnsmessage.AAAAResource{AAAA: [16]byte(ip6Address1)}},
		{Header: ip4Header, Body: &dnsmessage.AResource{A: [4]byte(ip4Address2.To4())}},
		{Header: ip6Header, Body: &dnsmessage.AAAAResource{AAAA: [16]byte(ip6Address2)}},
	})
	ip4Only := newFakeDNSServer(t, []dnsmessage.Resource{
		{Header: ip4Header, Body: &dnsmessage.AResource{A: [4]byte(ip4Address1.To4())}},
		{Header: ip4Header, Body: &dnsmessage.AResource{A: [4]byte(ip4Address2.To4())}},
	})

	testCases := []struct {
		name   string
		server *fakeDNSServer
		family Family
		want   []string
	}{
		{"mixed both", mixed, UseBothIPv4AndIPv6, []string{"10.0.0.100", "10.0.0.101", "fe80::1", "fe80::2"}},
		{"mixed prefer v4", mixed, PreferIPv4, []string{"10.0.0.100", "10.0.0.101"}},
		{"mixed require v4", mixed, RequireIPv4, []string{"10.0.0.100", "10.0.0.101"}},
		{"mixed prefer v6", mixed, PreferIPv6, []string{"fe80::1", "fe80::2"}},
		{"mixed require v6", mixed, RequireIPv6, []string{"fe80::1", "fe80::2"}},
		{"v4-only prefer v6 falls back", ip4Only, PreferIPv6, []string{"10.0.0.100", "10.0.0.101"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			res := NewDNSResolver(&net.Resolver{PreferGo: true, Dial: testCase.server.Dial})
			got, err := resolveSync(t, res, "example.com", testCase.family)
			require.NoError(t, err)
			want := make([]netip.Addr, len(testCase.want))
			for i, literal := range testCase.want {
				want[i] = netip.MustParseAddr(literal)
			}
			assert.ElementsMatch(t, want, got)
		})
	}
}

type fakeDNSServer struct {
	t       *testing.T
	answers []dnsmessage.Resource
}

func newFakeDNSServer(t *testing.T, answers []dnsmessage.Resource) *fakeDNSServer {
	return &fakeDNSServer{t: t, answers: answers}
}

func (s *fakeDNSServer) Dial(context.Context, string, string) (net.Conn, error) {
	clientConn, serverConn := net.Pipe()
	go func() {
		defer func() {
			_ = serverConn.Close()
		}()
		var requestLength uint16
		if err := binary.Read(serverConn, binary.BigEndian, &requestLength); err != nil {
			s.t.Errorf("error reading dns request length: %v", err)
			return
		}
		requestData := make([]byte, requestLength)
		if _, err := io.ReadFull(serverConn, requestData); err != nil {
			s.t.Errorf("error reading dns request: %v", err)
			return
		}
		request := &dnsmessage.Message{}
		if err := request.Unpack(requestData); err != nil {
			s.t.Errorf("error unpacking dns request: %v", err)
			return
		}
		answers := []dnsmessage.Resource{}
		for _, answer := range s.answers {
			if answer.Header.Type == request.Questions[0].Type {
				answers = append(answers, answer)
			}
		}
		response := &dnsmessage.Message{
			Header: dnsmessage.Header{
				ID:            request.ID,
				Response:      true,
				RCode:         dnsmessage.RCodeSuccess,
				Authoritative: true,
			},
			Questions: request.Questions,
			Answers:   answers,
		}
		responseData, err := response.Pack()
		if err != nil {
			s.t.Errorf("error packing dns response: %v", err)
			return
		}
		if err := binary.Write(serverConn, binary.BigEndian, uint16(len(responseData))); err != nil {
			s.t.Errorf("error writing dns response length: %v", err)
			return
		}
		if _, err := serverConn.Write(responseData); err != nil {
			s.t.Errorf("error writing dns response: %v", err)
			return
		}
	}()
	return clientConn, nil
}
