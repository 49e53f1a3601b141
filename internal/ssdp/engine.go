// Package ssdp implements the SSDP presence engine: periodic ssdp:alive
// broadcasts, an M-SEARCH responder, and startup/shutdown ssdp:byebye
// sends. Generalizes server/dlna/ssdp.go's Router-embedded SSDP duties
// into a standalone Engine that impersonates an origin device instead of
// a locally-hosted one.
package ssdp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dlna-proxy/dlnaproxy/internal/applog"
	"github.com/dlna-proxy/dlnaproxy/internal/ssdp/mcast"
	"github.com/dlna-proxy/dlnaproxy/internal/ssdp/packet"
)

// DeviceType is the UPnP device type this proxy impersonates.
const DeviceType = "urn:schemas-upnp-org:device:MediaServer:1"

// searchTargets are the ST values the M-SEARCH responder answers.
var searchTargets = map[string]bool{
	DeviceType:        true,
	"ssdp:all":        true,
	"upnp:rootdevice": true,
}

// EndpointFetcher retrieves the current device identity from the origin.
// Implemented by internal/originxml.Fetcher.
type EndpointFetcher interface {
	Fetch(ctx context.Context) (EndpointInfo, error)
}

// EndpointInfo carries the origin device identity fetched before each
// broadcast or reply: its device type, UDN, and Server header value.
type EndpointInfo struct {
	DeviceType string
	UDN        string
	ServerUA   string
}

// sockets is the subset of *mcast.Pair the engine's send paths use. It
// exists so tests can substitute a fake without opening real multicast
// sockets.
type sockets interface {
	SendTo(b []byte, addr *net.UDPAddr) error
	ReplyTo(b []byte, addr *net.UDPAddr) error
	ListenerConn() *net.UDPConn
	Close() error
}

// State is the engine's lifecycle state.
type State int

const (
	StateInitial State = iota
	StateStarted
	StateDraining
	StateExited
)

// Config configures the engine.
type Config struct {
	DescURL          string
	Period           time.Duration
	Iface            string
	Wait             time.Duration // retry window for the initial origin fetch; 0 disables retry
	ShutdownDeadline time.Duration // default 2s
}

// Engine runs the periodic alive broadcast, M-SEARCH responder, and
// startup/shutdown byebye sends for one impersonated device.
type Engine struct {
	cfg     Config
	fetcher EndpointFetcher
	sockets sockets

	mu    sync.Mutex
	state State

	cacheMaxAge int
	groupAddr   *net.UDPAddr
}

// New constructs an Engine. Sockets are not opened until Run is called.
func New(cfg Config, fetcher EndpointFetcher) *Engine {
	if cfg.ShutdownDeadline == 0 {
		cfg.ShutdownDeadline = 2 * time.Second
	}
	return &Engine{
		cfg:         cfg,
		fetcher:     fetcher,
		state:       StateInitial,
		cacheMaxAge: packet.CacheMaxAge(cfg.Period),
	}
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Run opens the SSDP sockets, sends the initial byebye, then runs the
// periodic broadcaster and M-SEARCH responder until ctx is canceled, at
// which point it sends the shutdown byebye (bounded by
// cfg.ShutdownDeadline) and returns.
func (e *Engine) Run(ctx context.Context) error {
	sockets, err := mcast.Open(mcast.Options{Iface: e.cfg.Iface})
	if err != nil {
		return fmt.Errorf("socket-bind: %w", err)
	}
	e.sockets = sockets
	defer sockets.Close()

	groupAddr, err := net.ResolveUDPAddr("udp4", mcast.GroupAddr)
	if err != nil {
		return fmt.Errorf("socket-bind: resolving group address: %w", err)
	}
	e.groupAddr = groupAddr

	if err := e.sendInitialByeBye(ctx); err != nil {
		return fmt.Errorf("byebye-send failed at startup: %w", err)
	}
	e.setState(StateStarted)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.runBroadcaster(gctx) })
	g.Go(func() error { return e.runListener(gctx) })

	err = g.Wait()

	e.setState(StateDraining)
	e.sendShutdownByeBye()
	e.setState(StateExited)

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// sendInitialByeBye clears stale caches on listeners at startup, mimicking
// reference DLNA server implementations. If --wait is configured, the
// origin fetch retries on a fixed interval up to that deadline before the
// initial byebye is allowed to fail fatally, instead of failing on the
// very first origin hiccup.
func (e *Engine) sendInitialByeBye(ctx context.Context) error {
	info, err := e.fetchWithRetry(ctx)
	if err != nil {
		return err
	}
	return e.broadcastByeBye(info)
}

const initialFetchRetryInterval = 2 * time.Second

func (e *Engine) fetchWithRetry(ctx context.Context) (EndpointInfo, error) {
	if e.cfg.Wait <= 0 {
		return e.fetcher.Fetch(ctx)
	}

	deadline := time.Now().Add(e.cfg.Wait)
	var lastErr error
	for {
		info, err := e.fetcher.Fetch(ctx)
		if err == nil {
			return info, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return EndpointInfo{}, fmt.Errorf("origin still unreachable after %s: %w", e.cfg.Wait, lastErr)
		}
		applog.Warn(ctx, "origin-unreachable: retrying before initial byebye", err)
		select {
		case <-ctx.Done():
			return EndpointInfo{}, ctx.Err()
		case <-time.After(initialFetchRetryInterval):
		}
	}
}

func (e *Engine) sendShutdownByeBye() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownDeadline)
	defer cancel()

	info, err := e.fetcher.Fetch(ctx)
	if err != nil {
		applog.Warn(ctx, "byebye-send failed: could not fetch origin identity for shutdown", err)
		return
	}
	e.broadcastByeBye(info)
}

func (e *Engine) broadcastByeBye(info EndpointInfo) error {
	var sendErr error
	for _, target := range e.serviceTypes(info) {
		b := packet.Render(packet.ByeBye{UDN: info.UDN, DeviceType: target})
		if err := e.sockets.SendTo(b, e.groupAddr); err != nil {
			applog.Warn(context.Background(), "byebye-send failed", err, "target", target)
			sendErr = err
		}
	}
	return sendErr
}

func (e *Engine) serviceTypes(info EndpointInfo) []string {
	dt := info.DeviceType
	if dt == "" {
		dt = DeviceType
	}
	return []string{dt}
}

func (e *Engine) runBroadcaster(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sendAlive(ctx)
		}
	}
}

func (e *Engine) sendAlive(ctx context.Context) {
	info, err := e.fetcher.Fetch(ctx)
	if err != nil {
		applog.Warn(ctx, "origin-unreachable: skipping alive broadcast this period", err)
		return
	}

	for _, target := range e.serviceTypes(info) {
		b := packet.Render(packet.Alive{
			DescURL:     e.cfg.DescURL,
			ServerUA:    info.ServerUA,
			UDN:         info.UDN,
			DeviceType:  target,
			CacheMaxAge: e.cacheMaxAge,
		})
		if err := e.sockets.SendTo(b, e.groupAddr); err != nil {
			applog.Warn(ctx, "origin-unreachable: alive send failed", err, "target", target)
		}
	}
}

func (e *Engine) runListener(ctx context.Context) error {
	conn := e.sockets.ListenerConn()
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return fmt.Errorf("socket-bind: %w", err)
		}

		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			applog.Warn(ctx, "malformed-ssdp: read error", err)
			continue
		}

		e.handleDatagram(ctx, buf[:n], remote)
	}
}

func (e *Engine) handleDatagram(ctx context.Context, data []byte, remote *net.UDPAddr) {
	method, headers, err := packet.Parse(data)
	if err != nil {
		applog.Debug(ctx, "malformed-ssdp: dropping packet", "error", err.Error())
		return
	}
	if method != "M-SEARCH" {
		return
	}
	st := headers["ST"]
	if !searchTargets[st] {
		return
	}

	info, err := e.fetcher.Fetch(ctx)
	if err != nil {
		applog.Warn(ctx, "origin-unreachable: cannot answer M-SEARCH", err)
		return
	}

	replyTarget := st
	if st == "ssdp:all" {
		replyTarget = info.DeviceType
		if replyTarget == "" {
			replyTarget = DeviceType
		}
	}

	resp := packet.Render(packet.Ok{
		DescURL:     e.cfg.DescURL,
		ServerUA:    info.ServerUA,
		UDN:         info.UDN,
		DeviceType:  replyTarget,
		CacheMaxAge: e.cacheMaxAge,
	})

	if err := e.sockets.ReplyTo(resp, remote); err != nil {
		applog.Warn(ctx, "M-SEARCH reply send failed", err, "remote", remote.String())
	}
}
