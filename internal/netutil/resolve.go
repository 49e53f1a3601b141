// Package netutil resolves the origin's description URL into a concrete
// socket address the proxy can dial, using only the standard net
// package's resolver (no DNS library is pulled in here).
package netutil

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// ResolveOrigin resolves rawURL's host to a concrete TCP address,
// defaulting the port to 80 when the URL omits one. DNS resolution goes
// through net.DefaultResolver so the result reflects whatever the host
// environment's resolver configuration would return for a direct dial.
func ResolveOrigin(ctx context.Context, rawURL string) (*net.TCPAddr, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing origin URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("origin URL %q has no host", rawURL)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		host = u.Host
		port = "80"
	}

	ipAddrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving origin host %q: %w", host, err)
	}
	if len(ipAddrs) == 0 {
		return nil, fmt.Errorf("origin host %q resolved to no addresses", host)
	}

	return net.ResolveTCPAddr("tcp", net.JoinHostPort(ipAddrs[0].IP.String(), port))
}
