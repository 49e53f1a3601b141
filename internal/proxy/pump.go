package proxy

import (
	"context"
	"io"
	"net"

	"github.com/dlna-proxy/dlnaproxy/internal/applog"
)

// pumpClientToOrigin forwards bytes from the client to the origin
// untouched: no interpretation, no modification. It returns once either
// side reaches EOF or errors, and half-closes the origin write side so
// the rewriter side observes EOF cleanly after the client stops sending.
func pumpClientToOrigin(ctx context.Context, origin, client net.Conn) {
	_, err := io.Copy(origin, client)
	if err != nil {
		applog.Trace(ctx, "proxy client->origin pump ended", "error", err.Error())
	}
	if tc, ok := origin.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
}
