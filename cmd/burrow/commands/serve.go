// Copyright 2026 The Burrow Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/burrow-net/burrow/cmd/burrow/cli"
	"github.com/burrow-net/burrow/forward"
	"github.com/burrow-net/burrow/lib/netutil"
	"github.com/burrow-net/burrow/signaling"
	"github.com/burrow-net/burrow/transport"
)

const (
	// stunTimeout bounds one public address discovery.
	stunTimeout = 5 * time.Second

	// stunRefreshInterval is how often the public mapping is refreshed
	// while serving. NAT mappings commonly expire after a few minutes.
	stunRefreshInterval = 2 * time.Minute
)

type serveParams struct {
	cli.Common
}

func serveCommand() *cli.Command {
	var params serveParams
	return &cli.Command{
		Name:    "serve",
		Summary: "Run a node that peers can open sessions to",
		Description: `Run the node daemon. It accepts sessions from peers on the TCP
listener (transport.listen) and, when transport.webrtc is set, over
WebRTC data channels negotiated through the signaling broker. Each
session is authorized against the forward section of the
configuration and relayed to its target or to a shell on a PTY.

While running, the node announces itself on the signaling broker so
that peers can find it by name.`,
		Usage:  "burrow serve [flags]",
		Params: func() any { return &params },
		Examples: []cli.Example{
			{Description: "Serve with the configuration in $BURROW_CONFIG", Command: "burrow serve"},
			{Description: "Serve with debug logging", Command: "burrow serve -c /etc/burrow/node.yaml -v"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("usage: burrow serve [flags]")
			}
			n, err := loadNode(&params.Common, logger)
			if err != nil {
				return err
			}
			return n.serve(ctx)
		},
	}
}

func (n *node) serve(ctx context.Context) error {
	cfg := n.config
	logger := n.logger.With("node", cfg.Node.Name, "node_id", n.identity.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var bus *signaling.Client
	if cfg.Signaling.Broker != "" {
		client, err := n.startBroker(ctx)
		if err != nil {
			return err
		}
		bus = client
	}

	var listeners []transport.Listener
	var addresses []string
	if cfg.Transport.Listen != "" {
		listener, err := transport.NewTCPListener(cfg.Transport.Listen)
		if err != nil {
			return cli.Transient("%w", err)
		}
		listeners = append(listeners, listener)
		addresses, err = netutil.AdvertisedAddresses(listener.Address())
		if err != nil {
			logger.Warn("cannot determine advertised addresses", "error", err)
		}
	}
	if cfg.Transport.WebRTC {
		if bus == nil {
			closeAll(listeners)
			return cli.Validation("transport.webrtc requires signaling.broker")
		}
		signaler := transport.NewBusSignaler(bus, cfg.Node.Name, logger)
		webrtc, err := transport.NewWebRTCTransport(ctx, signaler, cfg.Node.Name, transport.ICEConfigFromConfig(cfg.Transport), logger)
		if err != nil {
			closeAll(listeners)
			return cli.Internal("starting WebRTC: %w", err)
		}
		listeners = append(listeners, webrtc)
	}
	if len(listeners) == 0 {
		return cli.Validation("nothing to serve: set transport.listen or transport.webrtc")
	}

	policy := forward.Policy{
		Allow:     cfg.Forward.Allow,
		Shell:     cfg.Forward.Shell,
		ShellArgs: cfg.Forward.ShellArgs,
	}
	var servers []*forward.Server
	for _, listener := range listeners {
		server := &forward.Server{
			Listener: listener,
			Identity: n.identity,
			Pins:     cfg.Forward.Peers,
			Policy:   policy,
			Tunnel:   n.tunnelOptions(),
			Logger:   logger,
		}
		if err := server.Start(ctx); err != nil {
			for _, started := range servers {
				started.Stop()
			}
			closeAll(listeners)
			return cli.Internal("%w", err)
		}
		servers = append(servers, server)
	}

	var background sync.WaitGroup
	public := &publicAddress{}
	if len(cfg.Transport.STUNServers) > 0 {
		background.Go(func() {
			public.refresh(ctx, cfg.Transport.STUNServers, logger)
		})
	}
	if bus != nil {
		announcer := &signaling.Announcer{
			Bus:       bus,
			Directory: signaling.NewDirectory(cfg.PeerTTL()),
			Self: func() signaling.Announce {
				return signaling.Announce{
					NodeID:        n.identity.ID,
					Name:          cfg.Node.Name,
					Addresses:     addresses,
					PublicAddress: public.get(),
					WebRTC:        cfg.Transport.WebRTC,
					Services:      policy.Services(),
				}
			},
			Interval: cfg.AnnounceInterval(),
			Logger:   logger,
		}
		background.Go(func() {
			if err := announcer.Run(ctx); err != nil {
				logger.Error("announcer stopped", "error", err)
			}
		})
	}

	logger.Info("node serving", "addresses", addresses, "webrtc", cfg.Transport.WebRTC)
	<-ctx.Done()

	logger.Info("node shutting down")
	for _, server := range servers {
		server.Stop()
	}
	background.Wait()
	return nil
}

func closeAll(listeners []transport.Listener) {
	for _, listener := range listeners {
		listener.Close()
	}
}

// publicAddress holds the latest STUN-discovered mapping.
type publicAddress struct {
	mu      sync.Mutex
	address string
}

func (p *publicAddress) get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

func (p *publicAddress) set(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.address = address
}

// refresh discovers the mapping now and every stunRefreshInterval
// until ctx ends, using the first server that answers.
func (p *publicAddress) refresh(ctx context.Context, servers []string, logger *slog.Logger) {
	ticker := time.NewTicker(stunRefreshInterval)
	defer ticker.Stop()
	for {
		if address, err := discoverFirst(ctx, servers, logger); err == nil {
			if previous := p.get(); previous != address {
				logger.Info("public address discovered", "public_address", address)
				p.set(address)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func discoverFirst(ctx context.Context, servers []string, logger *slog.Logger) (string, error) {
	var lastErr error
	for _, server := range servers {
		attemptCtx, cancel := context.WithTimeout(ctx, stunTimeout)
		address, err := transport.DiscoverPublicAddress(attemptCtx, server)
		cancel()
		if err == nil {
			return address, nil
		}
		logger.Debug("STUN server did not answer", "server", server, "error", err)
		lastErr = err
	}
	return "", lastErr
}
