// Package mcast owns the two UDP sockets SSDP needs: a listener bound to
// :1900 for inbound NOTIFY/M-SEARCH traffic, and a broadcaster bound to an
// ephemeral port for outbound NOTIFY sends. Some consumer DLNA clients
// silently drop NOTIFY packets whose source port is 1900, hence the split.
//
// Grounded on server/dlna/ssdp.go's startSSDP (single ListenMulticastUDP
// socket), generalized to two sockets joined via golang.org/x/net/ipv4 so
// SO_REUSEADDR/SO_REUSEPORT can be set before bind and so interface binding
// (golang.org/x/sys/unix.SO_BINDTODEVICE) is available, neither of which
// net.ListenMulticastUDP exposes.
package mcast

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// GroupAddr is the SSDP multicast group and port.
const GroupAddr = "239.255.255.250:1900"

var groupIP = net.IPv4(239, 255, 255, 250)

// Pair holds the listener and broadcaster sockets, shared across the SSDP
// engine's goroutines through one *Pair pointer. Close closes both sockets
// and is not guarded against repeated calls; the engine calls it once,
// when Run returns.
type Pair struct {
	Listener    *ipv4.PacketConn
	Broadcaster *ipv4.PacketConn

	listenerConn    *net.UDPConn
	broadcasterConn *net.UDPConn
}

// Options configures socket construction.
type Options struct {
	// Iface, if non-empty, binds both sockets to the named interface. On
	// platforms without device-binding support this is a hard startup
	// error rather than a silent no-op.
	Iface string
}

// Open creates and joins both sockets. The listener binds 0.0.0.0:1900;
// the broadcaster binds 0.0.0.0:0 (ephemeral port). Both go through
// listenReusable so both get SO_REUSEADDR (and SO_REUSEPORT and
// SO_BINDTODEVICE where supported) set before bind, rather than just the
// listener. Both join the SSDP multicast group on every interface that
// has one, or on opt.Iface alone when given.
func Open(opt Options) (*Pair, error) {
	var iface *net.Interface
	if opt.Iface != "" {
		found, err := net.InterfaceByName(opt.Iface)
		if err != nil {
			return nil, fmt.Errorf("socket-bind: interface %q: %w", opt.Iface, err)
		}
		iface = found
	}

	listenerConn, err := listenReusable(":1900", opt.Iface)
	if err != nil {
		return nil, fmt.Errorf("socket-bind: listener: %w", err)
	}
	listener := ipv4.NewPacketConn(listenerConn)
	if err := joinGroup(listener, iface); err != nil {
		listenerConn.Close()
		return nil, fmt.Errorf("socket-bind: listener join group: %w", err)
	}

	broadcasterConn, err := listenReusable(":0", opt.Iface)
	if err != nil {
		listenerConn.Close()
		return nil, fmt.Errorf("socket-bind: broadcaster: %w", err)
	}
	broadcaster := ipv4.NewPacketConn(broadcasterConn)
	if err := joinGroup(broadcaster, iface); err != nil {
		listenerConn.Close()
		broadcasterConn.Close()
		return nil, fmt.Errorf("socket-bind: broadcaster join group: %w", err)
	}
	if opt.Iface != "" {
		if err := broadcaster.SetMulticastInterface(iface); err != nil {
			listenerConn.Close()
			broadcasterConn.Close()
			return nil, fmt.Errorf("socket-bind: set multicast interface: %w", err)
		}
	}

	return &Pair{
		Listener:        listener,
		Broadcaster:     broadcaster,
		listenerConn:    listenerConn,
		broadcasterConn: broadcasterConn,
	}, nil
}

func joinGroup(p *ipv4.PacketConn, iface *net.Interface) error {
	group := &net.UDPAddr{IP: groupIP}
	if iface != nil {
		return p.JoinGroup(iface, group)
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return p.JoinGroup(nil, group)
	}
	joined := 0
	for i := range ifaces {
		if ifaces[i].Flags&net.FlagMulticast == 0 || ifaces[i].Flags&net.FlagUp == 0 {
			continue
		}
		if err := p.JoinGroup(&ifaces[i], group); err == nil {
			joined++
		}
	}
	if joined == 0 {
		return p.JoinGroup(nil, group)
	}
	return nil
}

// Close shuts down both sockets.
func (p *Pair) Close() error {
	err1 := p.listenerConn.Close()
	err2 := p.broadcasterConn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SendTo writes a rendered SSDP packet to addr using the broadcaster
// socket. Used for the periodic alive broadcast and byebye sends, which
// some DLNA control points refuse to accept from port 1900. Concurrent
// calls from different goroutines are safe: datagram writes are atomic.
func (p *Pair) SendTo(b []byte, addr *net.UDPAddr) error {
	_, err := p.broadcasterConn.WriteToUDP(b, addr)
	return err
}

// ReplyTo writes a rendered SSDP packet to addr using the listener
// socket. Used for unicast M-SEARCH replies, which must come from the
// same socket the request was received on.
func (p *Pair) ReplyTo(b []byte, addr *net.UDPAddr) error {
	_, err := p.listenerConn.WriteToUDP(b, addr)
	return err
}

// ReadFrom reads one datagram from the listener socket.
func (p *Pair) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	return p.listenerConn.ReadFromUDP(buf)
}

// ListenerConn exposes the raw listener connection for read-deadline
// control, used to poll for incoming datagrams with a bounded
// SetReadDeadline(time.Now().Add(...)) call each cycle.
func (p *Pair) ListenerConn() *net.UDPConn { return p.listenerConn }

// BroadcasterConn exposes the raw broadcaster connection.
func (p *Pair) BroadcasterConn() *net.UDPConn { return p.broadcasterConn }
