//go:build !linux && !windows

package mcast

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenReusable binds with SO_REUSEADDR/SO_REUSEPORT set before bind.
// Interface binding (SO_BINDTODEVICE) is Linux-only, so a non-empty iface
// is a hard startup error here rather than a silent no-op.
func listenReusable(addr, iface string) (*net.UDPConn, error) {
	if iface != "" {
		return nil, fmt.Errorf("interface binding is not supported on this platform")
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					ctrlErr = err
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					ctrlErr = err
				}
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
