/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers for the downstream dialer.
package netutil

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// NewCustomDNSResolver creates a resolver that sends DNS queries to the passed servers in round-robin order.
// It returns nil when no servers are passed, so the system resolver is used by net.Dialer.
func NewCustomDNSResolver(addrs []string, timeout time.Duration) *net.Resolver {
	if len(addrs) == 0 {
		return nil
	}
	var idx uint32
	addrsLen := uint32(len(addrs)) //nolint:gosec // address count is reasonable
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			addr := addrs[(atomic.AddUint32(&idx, 1)-1)%addrsLen]
			return d.DialContext(ctx, network, addr)
		},
	}
}
