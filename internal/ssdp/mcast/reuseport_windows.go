//go:build windows

package mcast

import (
	"fmt"
	"net"
)

// listenReusable falls back to a plain bind on Windows: SO_REUSEPORT has
// no equivalent and interface binding is unsupported, so a non-empty
// iface is a hard startup error rather than a silent no-op.
func listenReusable(addr, iface string) (*net.UDPConn, error) {
	if iface != "" {
		return nil, fmt.Errorf("interface binding is not supported on this platform")
	}
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UDPConn), nil
}
