// Command dlnaproxy impersonates a remote DLNA MediaServer on the local
// SSDP multicast channel and, optionally, proxies its HTTP traffic so
// that description and control documents point back at this host instead
// of an otherwise-unreachable origin.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dlna-proxy/dlnaproxy/internal/applog"
	"github.com/dlna-proxy/dlnaproxy/internal/config"
	"github.com/dlna-proxy/dlnaproxy/internal/netutil"
	"github.com/dlna-proxy/dlnaproxy/internal/originxml"
	"github.com/dlna-proxy/dlnaproxy/internal/proxy"
	"github.com/dlna-proxy/dlnaproxy/internal/ssdp"
)

func main() {
	root, flags := newRootCommand()
	root.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(cmd, flags)
		if err != nil {
			return err
		}
		applog.SetLevel(cfg.Verbosity)
		return run(cmd.Context(), cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() (*cobra.Command, *config.FlagSet) {
	cmd := &cobra.Command{
		Use:   "dlnaproxy",
		Short: "Impersonate a DLNA MediaServer on the local network and optionally proxy its HTTP traffic",
	}
	flags := config.Bind(cmd)
	return cmd, flags
}

// run starts the SSDP engine and, if configured, the TCP proxy, and
// blocks until ctx is canceled by a termination signal. Both components
// run under one errgroup so a fatal startup failure in either tears down
// the other; a signal-driven shutdown is not an error.
func run(ctx context.Context, cfg config.Config) error {
	fetcher := originxml.New(cfg.DescriptionURL, cfg.ConnectTimeout)

	advertisedDescURL := cfg.DescriptionURL
	var p *proxy.Proxy
	if cfg.ProxyAddr != "" {
		built, rewritten, err := buildProxy(ctx, cfg)
		if err != nil {
			return fmt.Errorf("config-invalid: %w", err)
		}
		p = built
		advertisedDescURL = rewritten
	}

	engine := ssdp.New(ssdp.Config{
		DescURL: advertisedDescURL,
		Period:  cfg.Interval,
		Iface:   cfg.Iface,
		Wait:    cfg.Wait,
	}, fetcher)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	if p != nil {
		g.Go(func() error { return p.Run(gctx) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return multierror.Append(nil, err).ErrorOrNil()
	}
	applog.Info(ctx, "dlnaproxy shut down cleanly")
	return nil
}

// buildProxy derives the origin's dial address and URL base from the
// description URL, and the proxy's own URL base from --proxy, so that
// response bodies are rewritten from the origin's address to this
// process's listen address. It returns both the constructed Proxy and
// the description URL clients should be told to use instead — the
// original path and query rewritten onto the proxy's own host:port, so
// that every alive/byebye/M-SEARCH-OK LOCATION advertises the proxy
// rather than the unreachable origin.
func buildProxy(ctx context.Context, cfg config.Config) (*proxy.Proxy, string, error) {
	descURL, err := url.Parse(cfg.DescriptionURL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing --description-url: %w", err)
	}
	if descURL.Host == "" {
		return nil, "", fmt.Errorf("--description-url has no host:port")
	}

	originAddr, err := netutil.ResolveOrigin(ctx, cfg.DescriptionURL)
	if err != nil {
		return nil, "", fmt.Errorf("resolving origin address: %w", err)
	}

	originBase := fmt.Sprintf("%s://%s", schemeOrDefault(descURL.Scheme), descURL.Host)
	proxyBase := fmt.Sprintf("http://%s", cfg.ProxyAddr)

	rewrittenURL := *descURL
	rewrittenURL.Scheme = "http"
	rewrittenURL.Host = cfg.ProxyAddr

	p := proxy.New(proxy.Config{
		ListenAddr:     cfg.ProxyAddr,
		OriginAddr:     originAddr.String(),
		ConnectTimeout: cfg.ProxyTimeout,
		StreamTimeout:  cfg.StreamTimeout,
		Rewrite: proxy.URLRewrite{
			OriginBase: originBase,
			ProxyBase:  proxyBase,
		},
	})

	return p, rewrittenURL.String(), nil
}

func schemeOrDefault(scheme string) string {
	if scheme == "" {
		return "http"
	}
	return scheme
}
