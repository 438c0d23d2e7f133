/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package netutil contains network helpers used by the validation clients.
package netutil

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"
)

// NewRoundRobinDNSResolver creates a pure Go resolver that sends DNS queries to the given name servers in turn.
// It's used when a batch validation client has to reach the service via a dedicated DNS (e.g. Consul).
// dialTimeout limits establishing of the connection to a name server. Zero means no timeout.
func NewRoundRobinDNSResolver(servers []string, dialTimeout time.Duration) (*net.Resolver, error) {
	if len(servers) == 0 {
		return nil, errors.New("at least one DNS server should be specified")
	}
	for _, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			return nil, err
		}
	}
	addrs := append([]string(nil), servers...)

	var next atomic.Uint32
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			idx := (next.Add(1) - 1) % uint32(len(addrs)) //nolint:gosec // servers count is small
			return d.DialContext(ctx, network, addrs[idx])
		},
	}, nil
}
