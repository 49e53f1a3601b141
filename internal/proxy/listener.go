// Package proxy implements the transparent TCP URL-rewriting proxy:
// accept client connections, dial the origin with bounded concurrency,
// pump client->origin bytes untouched, and rewrite origin->client HTTP
// responses so embedded URLs point back at this proxy instead of the
// unreachable origin. Grounded on server/sonos_cast's connection-handling
// goroutine shape, generalized from a fixed Sonos-cast relay into a
// general-purpose HTTP response rewriter.
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dlna-proxy/dlnaproxy/internal/applog"
)

// maxConnections is the fixed concurrency cap on simultaneous proxied
// connections.
const maxConnections = 100

// Config configures the proxy listener.
type Config struct {
	ListenAddr     string
	OriginAddr     string // host:port the proxy dials for every accepted connection
	ConnectTimeout time.Duration
	StreamTimeout  time.Duration
	Rewrite        URLRewrite
}

// Proxy accepts client connections on Config.ListenAddr and relays them to
// Config.OriginAddr, rewriting response bodies per Config.Rewrite.
type Proxy struct {
	cfg Config
	sem *semaphore.Weighted
}

// New constructs a Proxy. Listening does not start until Run is called.
func New(cfg Config) *Proxy {
	return &Proxy{cfg: cfg, sem: semaphore.NewWeighted(maxConnections)}
}

// Run binds the listener and accepts connections until ctx is canceled or
// a fatal bind error occurs. The connection-cap semaphore is acquired
// around Accept itself, so once 100 connections are in flight the loop
// blocks before accepting another and excess clients queue in the kernel
// accept backlog rather than spawning unbounded handler goroutines.
// Per-connection errors are logged and the accept loop continues; it
// never terminates except on a fatal bind failure.
func (p *Proxy) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("proxy-listen failed: %w", err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	applog.Info(ctx, "proxy listening", "addr", p.cfg.ListenAddr, "origin", p.cfg.OriginAddr)

	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			applog.Warn(ctx, "proxy-accept error", err)
			continue
		}
		go p.handleConnection(ctx, conn)
	}
}

func (p *Proxy) handleConnection(ctx context.Context, client net.Conn) {
	ctx = applog.WithFields(ctx, "conn", uuid.NewString())

	defer p.sem.Release(1)
	defer client.Close()

	dialer := net.Dialer{Timeout: p.cfg.ConnectTimeout}
	origin, err := dialer.DialContext(ctx, "tcp", p.cfg.OriginAddr)
	if err != nil {
		applog.Warn(ctx, "origin-connect timeout: dropping client", err, "origin", p.cfg.OriginAddr)
		return
	}
	defer origin.Close()

	if p.cfg.StreamTimeout > 0 {
		deadline := time.Now().Add(p.cfg.StreamTimeout)
		_ = client.SetDeadline(deadline)
		_ = origin.SetDeadline(deadline)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpClientToOrigin(ctx, origin, client)
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				applog.Warn(ctx, "proxy rewriter panic recovered", fmt.Errorf("%v", r))
			}
		}()
		if err := forwardResponses(ctx, client, bufio.NewReader(origin), p.cfg.Rewrite); err != nil {
			applog.Trace(ctx, "proxy origin->client pump ended", "error", err.Error())
		}
	}()

	client.Close()
	origin.Close()
	<-done
}
